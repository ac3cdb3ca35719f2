package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/abe-bb/sensor-telemetry/controlplane/challenges"
	"github.com/abe-bb/sensor-telemetry/internal/fserrors"
	"github.com/abe-bb/sensor-telemetry/users"
)

type testUser struct {
	priv *rsa.PrivateKey
}

func newTestUser(t *testing.T) testUser {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return testUser{priv: priv}
}

func (u testUser) sign(t *testing.T, message []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, u.priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}
	return sig
}

func codeOf(t *testing.T, err error) fserrors.Code {
	t.Helper()
	fe, ok := err.(*fserrors.Error)
	if !ok {
		t.Fatalf("error %v is not *fserrors.Error", err)
	}
	return fe.Code
}

func buildHeader(user, signature, key, challenge string) http.Header {
	h := http.Header{}
	if user != "" {
		h.Set(HeaderUser, user)
	}
	if signature != "" {
		h.Set(HeaderSignature, signature)
	}
	if key != "" {
		h.Set(HeaderKey, key)
	}
	if challenge != "" {
		h.Set(HeaderChallenge, challenge)
	}
	return h
}

func TestAuthenticateHappyPath(t *testing.T) {
	alice := newTestUser(t)
	table := users.New(map[string]*rsa.PublicKey{"alice": &alice.priv.PublicKey})
	chal := challenges.New()
	p := &Pipeline{Users: table, Challenges: chal}

	current, err := chal.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	challengeSig := alice.sign(t, current[:])
	body := []byte(`{"name":"s1"}`)
	bodySig := alice.sign(t, body)

	header := buildHeader("alice",
		base64.StdEncoding.EncodeToString(bodySig),
		"unused-key-material",
		base64.StdEncoding.EncodeToString(challengeSig))

	username, err := p.Authenticate(header, body)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if username != "alice" {
		t.Fatalf("username = %q, want alice", username)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	table := users.New(map[string]*rsa.PublicKey{})
	p := &Pipeline{Users: table, Challenges: challenges.New()}

	header := buildHeader("alice", "sig", "", "chal")
	_, err := p.Authenticate(header, []byte("body"))
	if code := codeOf(t, err); code != fserrors.CodeMissingHeader {
		t.Fatalf("code = %v, want CodeMissingHeader", code)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	table := users.New(map[string]*rsa.PublicKey{})
	p := &Pipeline{Users: table, Challenges: challenges.New()}

	header := buildHeader("nobody", "c2ln", "key", "Y2hhbA==")
	_, err := p.Authenticate(header, []byte("body"))
	if code := codeOf(t, err); code != fserrors.CodeUnknownUser {
		t.Fatalf("code = %v, want CodeUnknownUser", code)
	}
}

func TestAuthenticateNoActiveChallenge(t *testing.T) {
	alice := newTestUser(t)
	table := users.New(map[string]*rsa.PublicKey{"alice": &alice.priv.PublicKey})
	p := &Pipeline{Users: table, Challenges: challenges.New()}

	header := buildHeader("alice", "c2ln", "key", "Y2hhbA==")
	_, err := p.Authenticate(header, []byte("body"))
	if code := codeOf(t, err); code != fserrors.CodeNoActiveChallenge {
		t.Fatalf("code = %v, want CodeNoActiveChallenge", code)
	}
}

// TestAuthenticateStaleChallengeSignatureRejected: a challenge signature
// verifying an older-than-current challenge must be rejected.
func TestAuthenticateStaleChallengeSignatureRejected(t *testing.T) {
	alice := newTestUser(t)
	table := users.New(map[string]*rsa.PublicKey{"alice": &alice.priv.PublicKey})
	chal := challenges.New()
	p := &Pipeline{Users: table, Challenges: chal}

	stale, err := chal.Issue("alice")
	if err != nil {
		t.Fatalf("Issue 1: %v", err)
	}
	staleSig := alice.sign(t, stale[:])

	if _, err := chal.Issue("alice"); err != nil {
		t.Fatalf("Issue 2: %v", err)
	}

	body := []byte(`{"name":"s1"}`)
	bodySig := alice.sign(t, body)
	header := buildHeader("alice",
		base64.StdEncoding.EncodeToString(bodySig),
		"key",
		base64.StdEncoding.EncodeToString(staleSig))

	_, err = p.Authenticate(header, body)
	if code := codeOf(t, err); code != fserrors.CodeBadChallengeSig {
		t.Fatalf("code = %v, want CodeBadChallengeSig", code)
	}
}

// TestAuthenticateCrossUserSignatureRejected: a body signed by user A
// presented with user:B must be rejected.
func TestAuthenticateCrossUserSignatureRejected(t *testing.T) {
	alice := newTestUser(t)
	bob := newTestUser(t)
	table := users.New(map[string]*rsa.PublicKey{
		"alice": &alice.priv.PublicKey,
		"bob":   &bob.priv.PublicKey,
	})
	chal := challenges.New()
	p := &Pipeline{Users: table, Challenges: chal}

	bobsChallenge, err := chal.Issue("bob")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	challengeSig := bob.sign(t, bobsChallenge[:]) // bob signs his own challenge

	body := []byte(`{"name":"s1"}`)
	bodySig := alice.sign(t, body) // but alice signs the body

	header := buildHeader("bob",
		base64.StdEncoding.EncodeToString(bodySig),
		"key",
		base64.StdEncoding.EncodeToString(challengeSig))

	_, err = p.Authenticate(header, body)
	if code := codeOf(t, err); code != fserrors.CodeBadBodySig {
		t.Fatalf("code = %v, want CodeBadBodySig", code)
	}
}

func TestAuthenticateMalformedBase64Header(t *testing.T) {
	alice := newTestUser(t)
	table := users.New(map[string]*rsa.PublicKey{"alice": &alice.priv.PublicKey})
	p := &Pipeline{Users: table, Challenges: challenges.New()}

	header := buildHeader("alice", "not-valid-base64!!", "key", "not-valid-base64!!")
	_, err := p.Authenticate(header, []byte("body"))
	if code := codeOf(t, err); code != fserrors.CodeMalformedHeader {
		t.Fatalf("code = %v, want CodeMalformedHeader", code)
	}
}
