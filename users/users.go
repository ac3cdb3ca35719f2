// Package users bootstraps the set of authorized operators from a directory
// of RSA public-key PEM files: load once, parse, build a keyed lookup,
// generalized from a single JSON file to a directory of PEM files.
package users

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Table is the read-once-at-startup set of authorized users. It is never
// mutated after Load returns, so it needs no lock of its own; the registry
// and challenge table are the only pieces of shared mutable state.
type Table struct {
	users map[string]*rsa.PublicKey
}

// New builds a Table directly from a map of already-parsed keys. Intended
// for tests that want to exercise auth without touching the filesystem.
func New(users map[string]*rsa.PublicKey) *Table {
	return &Table{users: users}
}

// Load reads every regular file directly inside dir, deriving a username
// from the filename stem (the substring before the first '.') and parsing
// the file contents as a PEM-encoded RSA public key. Subdirectories and
// unreadable entries are skipped with an error log rather than aborting the
// whole load.
func Load(dir string, log *slog.Logger) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("users: reading %s: %w", dir, err)
	}

	t := &Table{users: make(map[string]*rsa.PublicKey)}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			log.Error("skipping subdirectory in authorized users dir", "path", path)
			continue
		}
		pub, err := loadPublicKeyFile(path)
		if err != nil {
			log.Error("skipping unreadable authorized user file", "path", path, "error", err)
			continue
		}
		username := usernameFromFilename(entry.Name())
		t.users[username] = pub
		log.Info("loaded authorized user", "username", username)
	}
	return t, nil
}

func usernameFromFilename(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func loadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	generic, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := generic.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return pub, nil
}

// Lookup returns the public key registered for username, if any.
func (t *Table) Lookup(username string) (*rsa.PublicKey, bool) {
	pub, ok := t.users[username]
	return pub, ok
}
