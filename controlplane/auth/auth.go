// Package auth implements the control plane's two-signature authentication
// pipeline: a challenge signature proves liveness against the most recently
// issued challenge, and a body signature binds the authenticated user to the
// exact bytes that will be stored. Validates in a strict ordered pipeline,
// the same shape as tunnel/server/server.go's handleWS, and returns the
// first failure before doing any real work.
package auth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"unicode/utf8"

	"github.com/abe-bb/sensor-telemetry/controlplane/challenges"
	"github.com/abe-bb/sensor-telemetry/internal/fserrors"
	"github.com/abe-bb/sensor-telemetry/users"
)

// Headers are the four required headers on register/deregister requests.
const (
	HeaderUser      = "user"
	HeaderSignature = "signature"
	HeaderKey       = "key"
	HeaderChallenge = "challenge"
)

// Pipeline runs the shared register/deregister authentication steps against
// a user table and a challenge table.
type Pipeline struct {
	Users      *users.Table
	Challenges *challenges.Table
}

// Authenticate validates headers, looks up the user, and verifies both the
// challenge signature and the body signature, returning the authenticated
// username. Callers still need to parse the body as a SensorRecord
// themselves; a malformed body is a separate failure, independent of
// authentication.
func (p *Pipeline) Authenticate(header http.Header, body []byte) (string, error) {
	user := header.Get(HeaderUser)
	signatureB64 := header.Get(HeaderSignature)
	key := header.Get(HeaderKey)
	challengeB64 := header.Get(HeaderChallenge)

	if user == "" || signatureB64 == "" || key == "" || challengeB64 == "" {
		return "", missingHeader()
	}
	if !utf8.ValidString(user) || !utf8.ValidString(key) {
		return "", malformedHeader(nil)
	}

	challengeSig, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		return "", malformedHeader(err)
	}
	bodySig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return "", malformedHeader(err)
	}

	pub, ok := p.Users.Lookup(user)
	if !ok {
		return "", fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeUnknownUser, nil)
	}

	stored, ok := p.Challenges.Current(user)
	if !ok {
		return "", fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeNoActiveChallenge, nil)
	}
	if err := verify(pub, stored[:], challengeSig); err != nil {
		return "", fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeBadChallengeSig, err)
	}

	if err := verify(pub, body, bodySig); err != nil {
		return "", fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeBadBodySig, err)
	}

	return user, nil
}

// verify checks an RSA PKCS#1 v1.5 signature over SHA-256(message).
func verify(pub *rsa.PublicKey, message, sig []byte) error {
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
}

func missingHeader() error {
	return fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeMissingHeader, nil)
}

func malformedHeader(err error) error {
	return fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageAuth, fserrors.CodeMalformedHeader, err)
}
