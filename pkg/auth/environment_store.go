package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment
// variables. It is read-only and mainly serves CI and one-off runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	appSession := os.Getenv("GUMDL_APP_SESSION")
	guid := os.Getenv("GUMDL_GUID")
	userAgent := os.Getenv("GUMDL_USER_AGENT")

	if appSession == "" || guid == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables carry no account name
	if name == "" {
		name = "default"
	}

	return &Account{
		Name:         name,
		AppSession:   appSession,
		Guid:         guid,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("GUMDL_APP_SESSION") != "" && os.Getenv("GUMDL_GUID") != ""
}
