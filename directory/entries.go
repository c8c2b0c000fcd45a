// ABOUTME: Entry codec converting branding records into OS directory entries
// ABOUTME: Handles digit-key projection, label assembly, dedupe, cap, and sort order
package directory

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/harperreed/callsign/models"
)

// MaxLabelLength bounds the label handed to the OS; longer labels get
// truncated rather than rejected.
const MaxLabelLength = 128

// DigitKey reduces a phone number to its digits. Returns false when the
// result is empty or does not parse as a non-negative integer, which is what
// the OS enumeration API ultimately requires of its keys.
func DigitKey(phoneNumber string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phoneNumber) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if key == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(key, 10, 64); err != nil {
		return "", false
	}
	return key, true
}

// Label builds the display label for a record: the brand name, with the
// reason appended in parentheses when present.
func Label(brandName, reason string) string {
	label := strings.TrimSpace(brandName)
	if r := strings.TrimSpace(reason); r != "" {
		label = label + " (" + r + ")"
	}
	if len(label) > MaxLabelLength {
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		cut := MaxLabelLength
		for cut > 0 && !utf8.RuneStart(label[cut]) {
			cut--
		}
		label = label[:cut]
	}
	return label
}

// EntryFromRecord converts a single branding record into a directory entry.
// Returns false for records that cannot be represented: empty number, number
// with no usable digit key, or empty brand name.
func EntryFromRecord(rec models.BrandingRecord) (models.DirectoryEntry, bool) {
	number := strings.TrimSpace(rec.PhoneNumber)
	if number == "" {
		return models.DirectoryEntry{}, false
	}
	key, ok := DigitKey(number)
	if !ok {
		return models.DirectoryEntry{}, false
	}
	brand := strings.TrimSpace(rec.BrandName)
	if brand == "" {
		return models.DirectoryEntry{}, false
	}
	return models.DirectoryEntry{
		FullNumber: number,
		DigitKey:   key,
		Label:      Label(brand, rec.Reason),
	}, true
}

// BuildEntries converts records to entries, dedupes by digit key (first
// occurrence wins), caps the total at maxEntries in input order, and sorts
// ascending by (digit-key length, digit key, full number) as the OS directory
// facility requires.
//
// The cap truncates in input order, not by any notion of priority.
func BuildEntries(records []models.BrandingRecord, maxEntries int) []models.DirectoryEntry {
	seen := make(map[string]bool, len(records))
	entries := make([]models.DirectoryEntry, 0, len(records))

	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		entry, ok := EntryFromRecord(rec)
		if !ok {
			continue
		}
		if seen[entry.DigitKey] {
			continue
		}
		if maxEntries > 0 && len(entries) >= maxEntries {
			break
		}
		seen[entry.DigitKey] = true
		entries = append(entries, entry)
	}

	SortEntries(entries)
	return entries
}

// SortEntries orders entries ascending by (digit-key length, digit key,
// full number). Equal-length digit keys compare lexicographically, which for
// digit strings is the same as numeric order.
func SortEntries(entries []models.DirectoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if len(a.DigitKey) != len(b.DigitKey) {
			return len(a.DigitKey) < len(b.DigitKey)
		}
		if a.DigitKey != b.DigitKey {
			return a.DigitKey < b.DigitKey
		}
		return a.FullNumber < b.FullNumber
	})
}

// CheckStrictOrder verifies entries are strictly ascending by digit key with
// no duplicates. Consumers feeding the OS enumeration API should run this as
// a last defense: that facility rejects non-increasing sequences outright.
func CheckStrictOrder(entries []models.DirectoryEntry) bool {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if len(prev.DigitKey) > len(cur.DigitKey) {
			return false
		}
		if len(prev.DigitKey) == len(cur.DigitKey) && prev.DigitKey >= cur.DigitKey {
			return false
		}
	}
	return true
}
