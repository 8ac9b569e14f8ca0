package auth

import (
	"fmt"
	"sync"

	"github.com/nerrad567/regsync/internal/infrastructure/config"
)

// Accounts is the set of API identities from configuration.
type Accounts struct {
	byName map[string]*Account

	// dummyHash is verified for unknown usernames so a failed login costs
	// the same whether or not the account exists.
	dummyOnce sync.Once
	dummyHash string
}

// NewAccounts validates and indexes the configured accounts.
func NewAccounts(cfgs []config.AccountConfig) (*Accounts, error) {
	a := &Accounts{byName: make(map[string]*Account, len(cfgs))}
	for _, c := range cfgs {
		role := Role(c.Role)
		if c.Username == "" || !IsValidRole(role) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, c.Username)
		}
		if _, _, _, err := decodePHC(c.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAccount, c.Username, err)
		}
		a.byName[c.Username] = &Account{Username: c.Username, Role: role, PasswordHash: c.PasswordHash}
	}
	return a, nil
}

// Len returns the number of accounts.
func (a *Accounts) Len() int {
	return len(a.byName)
}

// Lookup returns the account for username.
func (a *Accounts) Lookup(username string) (*Account, bool) {
	acc, ok := a.byName[username]
	return acc, ok
}

// Authenticate checks a username and password.
func (a *Accounts) Authenticate(username, password string) (*Account, error) {
	acc, ok := a.byName[username]
	if !ok {
		a.dummyOnce.Do(func() {
			a.dummyHash, _ = HashPassword("regsync-dummy") //nolint:errcheck // only fails if crypto/rand does
		})
		VerifyPassword(password, a.dummyHash) //nolint:errcheck // timing only
		return nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, acc.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for %q: %w", username, err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}
