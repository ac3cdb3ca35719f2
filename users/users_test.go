package users

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeTestKey(t *testing.T, dir, filename string) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return priv
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadDerivesUsernameFromFilenameStem(t *testing.T) {
	dir := t.TempDir()
	priv := writeTestKey(t, dir, "testUser.pem")

	table, err := Load(dir, discardLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pub, ok := table.Lookup("testUser")
	if !ok {
		t.Fatal("Lookup: testUser not found")
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatal("loaded public key does not match written key")
	}
}

func TestLoadSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	writeTestKey(t, dir, "realUser.pem")

	table, err := Load(dir, discardLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.Lookup("subdir"); ok {
		t.Fatal("subdirectory was treated as a user")
	}
	if _, ok := table.Lookup("realUser"); !ok {
		t.Fatal("realUser not loaded")
	}
}

func TestLoadSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "garbage.pem"), []byte("not pem"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	writeTestKey(t, dir, "goodUser.pem")

	table, err := Load(dir, discardLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.Lookup("garbage"); ok {
		t.Fatal("garbage.pem should not have produced a user")
	}
	if _, ok := table.Lookup("goodUser"); !ok {
		t.Fatal("goodUser not loaded")
	}
}

func TestLookupUnknownUser(t *testing.T) {
	table := New(map[string]*rsa.PublicKey{})
	if _, ok := table.Lookup("nobody"); ok {
		t.Fatal("expected unknown user to be absent")
	}
}
