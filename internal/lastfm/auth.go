package lastfm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scrobbled/scrobbled/internal/util"
)

// Auth holds the credentials used to authorize API requests. The JSON field
// names match the auth file layout used by other scrobble tooling so files
// can be shared.
type Auth struct {
	Network      string `json:"lastfm_network"` // "lastfm" or "librefm"
	APIKey       string `json:"lastfm_api_key"`
	SharedSecret string `json:"lastfm_shared_secret"`
	Username     string `json:"lastfm_username"`
	SessionKey   string `json:"lastfm_session_key,omitempty"`
}

// BaseURL returns the API base URL for the configured network
func (a *Auth) BaseURL() string {
	if a.Network == "librefm" {
		return LibreFMBaseURL
	}
	return LastFMBaseURL
}

// Validate checks that the fields required for history fetching are present
func (a *Auth) Validate() error {
	if a.APIKey == "" {
		return fmt.Errorf("%w: auth file has no API key", util.ErrAuth)
	}
	if a.Username == "" {
		return fmt.Errorf("%w: auth file has no username", util.ErrAuth)
	}
	return nil
}

// LoadAuth reads credentials from a JSON auth file
func LoadAuth(path string) (*Auth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: auth file %s does not exist (run 'scrobbled auth' first)", util.ErrAuth, path)
		}
		return nil, fmt.Errorf("failed to read auth file: %w", err)
	}

	auth := &Auth{}
	if err := json.Unmarshal(data, auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth file %s: %w", path, err)
	}

	if auth.Network == "" {
		auth.Network = "lastfm"
	}

	return auth, nil
}

// SaveAuth writes credentials to a JSON auth file, creating parent
// directories as needed. The file is user-readable only.
func SaveAuth(path string, auth *Auth) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}

	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode auth data: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}

	return nil
}
