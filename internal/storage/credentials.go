package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	credentialsFile = "credentials.json"
	clientIDFile    = "client_id"
)

// Credentials is the persisted token pair. Both values are opaque to this
// layer.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store persists client-side state under the admin home directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory must exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// LoadCredentials reads the persisted token pair.
//
// ok is false when no credentials are stored.
func (s *Store) LoadCredentials() (creds Credentials, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, creds.AccessToken != "", nil
}

// SaveCredentials writes the token pair as a unit with restrictive
// permissions.
func (s *Store) SaveCredentials(creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, credentialsFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// ClearCredentials removes the persisted token pair. Clearing absent
// credentials is not an error.
func (s *Store) ClearCredentials() error {
	err := os.Remove(filepath.Join(s.dir, credentialsFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// ClientID loads or generates the stable per-installation client id sent
// in the realtime handshake.
func (s *Store) ClientID() (string, error) {
	path := filepath.Join(s.dir, clientIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to save client id: %w", err)
	}
	return id, nil
}
