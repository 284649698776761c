// Package mocks holds hand-written test doubles shared by integration tests.
package mocks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/strongroom-wallet/strongroom/internal/hsk"
)

// AuthenticatorTransport simulates a FIDO2 security key. Each AwaitProof call
// produces a deterministic assertion over the challenge, keyed by the
// device's credential identifier, the way a real authenticator signs with its
// resident key.
type AuthenticatorTransport struct {
	CredentialID []byte
	PRF          bool

	// FailWith, when set, makes every ceremony fail with this error.
	FailWith error
}

// NewAuthenticatorTransport creates a simulated security key.
func NewAuthenticatorTransport(credentialID string) *AuthenticatorTransport {
	return &AuthenticatorTransport{CredentialID: []byte(credentialID)}
}

// AwaitProof returns a deterministic proof of possession over the challenge.
func (t *AuthenticatorTransport) AwaitProof(ctx context.Context, challenge, prfSalt []byte) (*hsk.ProofOfPossession, error) {
	if t.FailWith != nil {
		return nil, t.FailWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assertion := bytes.Repeat([]byte{0x41}, 37)
	assertion = append(assertion, challenge...)

	mac := hmac.New(sha256.New, t.CredentialID)
	mac.Write(assertion)
	signature := mac.Sum(nil)
	signature = append(signature, mac.Sum(nil)...)

	proof := &hsk.ProofOfPossession{
		CredentialID:  append([]byte(nil), t.CredentialID...),
		AssertionData: assertion,
		Signature:     signature,
	}

	if t.PRF && len(prfSalt) > 0 {
		prf := hmac.New(sha256.New, t.CredentialID)
		prf.Write(prfSalt)
		proof.PRFOutput = prf.Sum(nil)
	}

	return proof, nil
}

// SupportsPRF reports whether the simulated key evaluates the PRF extension.
func (t *AuthenticatorTransport) SupportsPRF() bool { return t.PRF }

var _ hsk.Transport = (*AuthenticatorTransport)(nil)
