// ABOUTME: Groups remote branding records into bounded managed-contact groups
// ABOUTME: Deterministic group ids make reconciliation idempotent across runs
package contacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/harperreed/callsign/models"
)

// Default caps. Contacts stores degrade with very wide records, and the
// total managed-profile footprint has to stay small relative to the user's
// own contacts.
const (
	DefaultMaxPhoneNumbersPerContact = 50
	DefaultMaxProfiles               = 2000
)

// GroupID returns the deterministic id for a brand's nth chunk. Regenerating
// the same inputs always yields the same id, so reconciliation never needs a
// separately remembered brand-to-id mapping.
func GroupID(brandName string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", brandName, chunkIndex)))
	return hex.EncodeToString(sum[:16])
}

// BuildGroups computes the desired managed-contact groups for the current
// record set:
//
//  1. Only records with a brand name and a logo URL qualify; records without
//     a logo get directory labels only.
//  2. Numbers are bucketed by trimmed brand name, deduplicated, and sorted.
//  3. Each bucket is chunked into groups of at most maxPerContact numbers.
//  4. Brands are processed in sorted-name order, chunks in index order, and
//     no new groups are accepted once maxProfiles is reached. Brands sorting
//     past the cap are dropped for the cycle; the ordering is deterministic,
//     so the same brands are dropped each cycle for the same input.
func BuildGroups(records []models.BrandingRecord, maxPerContact, maxProfiles int) []models.ManagedContactGroup {
	if maxPerContact <= 0 {
		maxPerContact = DefaultMaxPhoneNumbersPerContact
	}
	if maxProfiles <= 0 {
		maxProfiles = DefaultMaxProfiles
	}

	numbersByBrand := map[string]map[string]bool{}
	logoByBrand := map[string]string{}
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		brand := strings.TrimSpace(rec.BrandName)
		logo := strings.TrimSpace(rec.LogoURL)
		number := strings.TrimSpace(rec.PhoneNumber)
		if brand == "" || logo == "" || number == "" {
			continue
		}
		if numbersByBrand[brand] == nil {
			numbersByBrand[brand] = map[string]bool{}
		}
		numbersByBrand[brand][number] = true
		if logoByBrand[brand] == "" {
			logoByBrand[brand] = logo
		}
	}

	brands := make([]string, 0, len(numbersByBrand))
	for brand := range numbersByBrand {
		brands = append(brands, brand)
	}
	sort.Strings(brands)

	var groups []models.ManagedContactGroup
	for _, brand := range brands {
		numbers := make([]string, 0, len(numbersByBrand[brand]))
		for number := range numbersByBrand[brand] {
			numbers = append(numbers, number)
		}
		sort.Strings(numbers)

		for chunkIndex := 0; len(numbers) > 0; chunkIndex++ {
			if len(groups) >= maxProfiles {
				return groups
			}
			chunk := numbers
			if len(chunk) > maxPerContact {
				chunk = chunk[:maxPerContact]
			}
			numbers = numbers[len(chunk):]
			groups = append(groups, models.ManagedContactGroup{
				GroupID:      GroupID(brand, chunkIndex),
				BrandName:    brand,
				LogoURL:      logoByBrand[brand],
				PhoneNumbers: append([]string(nil), chunk...),
			})
		}
	}
	return groups
}
