// ABOUTME: SDK configuration with XDG defaults and environment variable overrides
// ABOUTME: StorageRoot is the container shared with the extension; host state stays private
package callsign

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/harperreed/callsign/contacts"
)

// Config configures a Handle. Only Namespace is strictly required; the rest
// have workable defaults.
//
// Environment variables override file-of-origin values:
// - CALLSIGN_STORAGE_ROOT
// - CALLSIGN_API_BASE_URL
// - CALLSIGN_API_KEY
// - CALLSIGN_EXTENSION_ID
// - CALLSIGN_MAX_ENTRIES.
type Config struct {
	// StorageRoot is the durable location shared with the extension process.
	// On-device this is the app-group container; defaults to an XDG path for
	// development and tests.
	StorageRoot string `json:"storage_root"`

	// Namespace keys all persisted state under StorageRoot, so several
	// configurations can share one container.
	Namespace string `json:"namespace"`

	// HostStateDir holds host-only state (record cache, reload state, image
	// cache). Must not live inside StorageRoot.
	HostStateDir string `json:"host_state_dir"`

	// ExtensionID identifies the directory extension to the OS reload call.
	ExtensionID string `json:"extension_id"`

	APIBaseURL string `json:"api_base_url"`
	APIKey     string `json:"api_key"`

	// MaxEntries caps the directory snapshot; zero means unlimited.
	MaxEntries int `json:"max_entries"`

	MaxPhoneNumbersPerContact int `json:"max_phone_numbers_per_contact"`
	MaxProfiles               int `json:"max_profiles"`
}

// DefaultStorageRoot is where snapshots land when no shared container path
// is configured.
func DefaultStorageRoot() string {
	return filepath.Join(xdg.DataHome, "callsign")
}

// DefaultHostStateDir is the default location for host-only state.
func DefaultHostStateDir() string {
	return filepath.Join(xdg.StateHome, "callsign")
}

// withDefaults fills unset fields and applies env overrides.
func (c Config) withDefaults() (Config, error) {
	applyEnvOverrides(&c)
	if c.Namespace == "" {
		return c, fmt.Errorf("callsign: config.Namespace is required")
	}
	if c.StorageRoot == "" {
		c.StorageRoot = DefaultStorageRoot()
	}
	if c.HostStateDir == "" {
		c.HostStateDir = DefaultHostStateDir()
	}
	if c.MaxPhoneNumbersPerContact <= 0 {
		c.MaxPhoneNumbersPerContact = contacts.DefaultMaxPhoneNumbersPerContact
	}
	if c.MaxProfiles <= 0 {
		c.MaxProfiles = contacts.DefaultMaxProfiles
	}
	return c, nil
}

func applyEnvOverrides(cfg *Config) {
	if root := os.Getenv("CALLSIGN_STORAGE_ROOT"); root != "" {
		cfg.StorageRoot = root
	}
	if base := os.Getenv("CALLSIGN_API_BASE_URL"); base != "" {
		cfg.APIBaseURL = base
	}
	if key := os.Getenv("CALLSIGN_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if ext := os.Getenv("CALLSIGN_EXTENSION_ID"); ext != "" {
		cfg.ExtensionID = ext
	}
	if max := os.Getenv("CALLSIGN_MAX_ENTRIES"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			cfg.MaxEntries = n
		}
	}
}
