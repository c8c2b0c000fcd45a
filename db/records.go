// ABOUTME: Cache operations for remote branding records
// ABOUTME: Applies cursor-delta fetches so the cache always holds the full record set
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/callsign/models"
)

// ApplyRecords merges one fetched delta into the cache. Records flagged
// deleted are removed; everything else is upserted by phone number. The
// cache plus each delta is what reconstitutes the full remote set for
// snapshot building and reconciliation.
func ApplyRecords(db *sql.DB, records []models.BrandingRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.Prepare(`
		INSERT INTO branding_records (phone_number, brand_name, logo_url, reason, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			brand_name = excluded.brand_name,
			logo_url   = excluded.logo_url,
			reason     = excluded.reason,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = upsert.Close() }()

	remove, err := tx.Prepare(`DELETE FROM branding_records WHERE phone_number = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer func() { _ = remove.Close() }()

	for _, rec := range records {
		number := strings.TrimSpace(rec.PhoneNumber)
		if number == "" {
			continue
		}
		if rec.Deleted {
			if _, err := remove.Exec(number); err != nil {
				return fmt.Errorf("failed to delete record %s: %w", number, err)
			}
			continue
		}
		_, err := upsert.Exec(number, strings.TrimSpace(rec.BrandName),
			strings.TrimSpace(rec.LogoURL), strings.TrimSpace(rec.Reason), rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", number, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache update: %w", err)
	}
	return nil
}

// ListRecords returns the full cached record set ordered by phone number.
func ListRecords(db *sql.DB) ([]models.BrandingRecord, error) {
	rows, err := db.Query(`
		SELECT phone_number, brand_name, logo_url, reason, updated_at
		FROM branding_records
		ORDER BY phone_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.BrandingRecord
	for rows.Next() {
		var rec models.BrandingRecord
		if err := rows.Scan(&rec.PhoneNumber, &rec.BrandName, &rec.LogoURL, &rec.Reason, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CountRecords returns the number of cached records.
func CountRecords(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM branding_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
