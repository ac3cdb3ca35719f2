// Package challenges holds the per-user active-challenge table: at most one
// live 64-byte random challenge per username, replaced (not merged) by each
// new issuance. Same RWMutex-guarded map shape as the sensor registry,
// following the IssuerKeyset pattern.
package challenges

import (
	"crypto/rand"
	"sync"
)

// Size is the length in bytes of an issued challenge.
const Size = 64

// Table is the shared per-user challenge store.
type Table struct {
	mu         sync.RWMutex
	challenges map[string][Size]byte
}

// New returns an empty challenge table.
func New() *Table {
	return &Table{challenges: make(map[string][Size]byte)}
}

// Random generates a fresh 64-byte challenge without storing it. Used for
// the GET /challenge/{user} response to an unknown user: the caller must
// still receive 64 random bytes so the endpoint doesn't reveal which
// usernames are registered, but nothing is stored to verify against later.
func Random() ([Size]byte, error) {
	var challenge [Size]byte
	_, err := rand.Read(challenge[:])
	return challenge, err
}

// Issue generates a fresh random challenge, stores it for username
// (replacing any prior value), and returns it.
func (t *Table) Issue(username string) ([Size]byte, error) {
	challenge, err := Random()
	if err != nil {
		return challenge, err
	}

	t.mu.Lock()
	t.challenges[username] = challenge
	t.mu.Unlock()

	return challenge, nil
}

// Current returns the active challenge for username, if one has been issued.
func (t *Table) Current(username string) ([Size]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.challenges[username]
	return c, ok
}
