// ABOUTME: Tests for the entry codec
// ABOUTME: Covers digit keys, label construction, dedupe, caps, and sort order
package directory

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/harperreed/callsign/models"
)

func TestDigitKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"+15551234567", "15551234567", true},
		{"(555) 123-4567", "5551234567", true},
		{"  +44 20 7946 0958 ", "442079460958", true},
		{"", "", false},
		{"   ", "", false},
		{"no digits here", "", false},
		{"123456789012345678901234567890", "", false}, // overflows uint64
	}

	for _, tt := range tests {
		got, ok := DigitKey(tt.input)
		if ok != tt.ok {
			t.Errorf("DigitKey(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("DigitKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLabelConstruction(t *testing.T) {
	tests := []struct {
		brand  string
		reason string
		want   string
	}{
		{"Acme Corp", "Delivery", "Acme Corp (Delivery)"},
		{"Acme Corp", "", "Acme Corp"},
		{"Acme Corp", "   ", "Acme Corp"},
		{"  Acme Corp  ", "Fraud Alert", "Acme Corp (Fraud Alert)"},
	}

	for _, tt := range tests {
		got := Label(tt.brand, tt.reason)
		if got != tt.want {
			t.Errorf("Label(%q, %q) = %q, want %q", tt.brand, tt.reason, got, tt.want)
		}
	}
}

func TestLabelTruncation(t *testing.T) {
	long := Label(strings.Repeat("x", 200), "")
	if len(long) != MaxLabelLength {
		t.Errorf("ASCII label length = %d, want %d", len(long), MaxLabelLength)
	}

	// 3-byte runes put the byte limit mid-rune; the cut must not split one.
	wide := Label(strings.Repeat("★", 50), "")
	if len(wide) > MaxLabelLength {
		t.Errorf("wide label length = %d, want <= %d", len(wide), MaxLabelLength)
	}
	if !utf8.ValidString(wide) {
		t.Errorf("truncated label is not valid UTF-8: %q", wide)
	}
	if len(wide) != 126 {
		t.Errorf("wide label length = %d, want 126 (42 three-byte runes)", len(wide))
	}
}

func TestEntryFromRecord(t *testing.T) {
	rec := models.BrandingRecord{
		PhoneNumber: "+15551234567",
		BrandName:   "Acme Corp",
		Reason:      "Delivery",
	}
	entry, ok := EntryFromRecord(rec)
	if !ok {
		t.Fatal("expected entry for valid record")
	}
	if entry.DigitKey != "15551234567" {
		t.Errorf("digit key = %q, want 15551234567", entry.DigitKey)
	}
	if entry.Label != "Acme Corp (Delivery)" {
		t.Errorf("label = %q, want %q", entry.Label, "Acme Corp (Delivery)")
	}
	if entry.FullNumber != "+15551234567" {
		t.Errorf("full number = %q", entry.FullNumber)
	}
}

func TestEntryFromRecordRejects(t *testing.T) {
	tests := []struct {
		name string
		rec  models.BrandingRecord
	}{
		{"empty number", models.BrandingRecord{PhoneNumber: "  ", BrandName: "Acme"}},
		{"no digits", models.BrandingRecord{PhoneNumber: "ext. none", BrandName: "Acme"}},
		{"empty brand", models.BrandingRecord{PhoneNumber: "+15551234567", BrandName: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := EntryFromRecord(tt.rec); ok {
				t.Errorf("expected rejection for %s", tt.name)
			}
		})
	}
}

func TestBuildEntriesSortOrder(t *testing.T) {
	records := []models.BrandingRecord{
		{PhoneNumber: "+15551230002", BrandName: "Beta"},
		{PhoneNumber: "+441234", BrandName: "Short"},
		{PhoneNumber: "+15551230001", BrandName: "Alpha"},
		{PhoneNumber: "+99", BrandName: "Tiny"},
	}
	entries := BuildEntries(records, 0)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	// Shorter digit keys first, then lexicographic within equal length.
	wantKeys := []string{"99", "441234", "15551230001", "15551230002"}
	for i, want := range wantKeys {
		if entries[i].DigitKey != want {
			t.Errorf("entries[%d].DigitKey = %q, want %q", i, entries[i].DigitKey, want)
		}
	}
	if !CheckStrictOrder(entries) {
		t.Error("expected strict ascending order")
	}
}

func TestBuildEntriesDedupe(t *testing.T) {
	records := []models.BrandingRecord{
		{PhoneNumber: "+15551230001", BrandName: "First"},
		{PhoneNumber: "1-555-123-0001", BrandName: "Second"}, // same digit key
	}
	entries := BuildEntries(records, 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after dedupe, got %d", len(entries))
	}
	if entries[0].Label != "First" {
		t.Errorf("first occurrence should win, got label %q", entries[0].Label)
	}
}

func TestBuildEntriesCap(t *testing.T) {
	var records []models.BrandingRecord
	for i := 0; i < 10; i++ {
		records = append(records, models.BrandingRecord{
			PhoneNumber: fmt.Sprintf("+1555123%04d", i),
			BrandName:   "Acme",
		})
	}
	entries := BuildEntries(records, 3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Truncation is input order: the first three records survive.
	for i, entry := range entries {
		want := fmt.Sprintf("1555123%04d", i)
		if entry.DigitKey != want {
			t.Errorf("entries[%d].DigitKey = %q, want %q", i, entry.DigitKey, want)
		}
	}
}

func TestBuildEntriesSkipsDeleted(t *testing.T) {
	records := []models.BrandingRecord{
		{PhoneNumber: "+15551230001", BrandName: "Gone", Deleted: true},
		{PhoneNumber: "+15551230002", BrandName: "Here"},
	}
	entries := BuildEntries(records, 0)
	if len(entries) != 1 || entries[0].Label != "Here" {
		t.Fatalf("expected only the live record, got %+v", entries)
	}
}

func TestCheckStrictOrder(t *testing.T) {
	good := []models.DirectoryEntry{
		{DigitKey: "99"},
		{DigitKey: "100"},
		{DigitKey: "101"},
	}
	if !CheckStrictOrder(good) {
		t.Error("expected strictly ordered entries to pass")
	}

	duplicate := []models.DirectoryEntry{
		{DigitKey: "100"},
		{DigitKey: "100"},
	}
	if CheckStrictOrder(duplicate) {
		t.Error("expected duplicate digit keys to fail")
	}

	backwards := []models.DirectoryEntry{
		{DigitKey: "101"},
		{DigitKey: "100"},
	}
	if CheckStrictOrder(backwards) {
		t.Error("expected descending keys to fail")
	}
}
