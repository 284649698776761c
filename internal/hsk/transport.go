package hsk

import "context"

// ProofOfPossession is the material produced by an authenticator assertion
// ceremony. The raw credential identifier is consumed during derivation and
// never stored; only its one-way hash survives.
type ProofOfPossession struct {
	// CredentialID is the device-issued credential identifier.
	CredentialID []byte

	// AssertionData is the signed authenticator data (authenticatorData
	// concatenated with the client data hash).
	AssertionData []byte

	// Signature is the authenticator's signature over AssertionData.
	Signature []byte

	// PRFOutput is the PRF extension output, when the authenticator
	// evaluated it. Empty for the common external-key case.
	PRFOutput []byte
}

// Size returns the total attestation byte count used for the minimum
// viable proof check.
func (p *ProofOfPossession) Size() int {
	return len(p.AssertionData) + len(p.Signature)
}

// Transport is the external FIDO2/WebAuthn authenticator transport. The
// engine only consumes challenge/response bytes; ceremony mechanics live
// outside the core.
type Transport interface {
	// AwaitProof blocks until the user taps the security key and returns
	// assertion material over the challenge, or until ctx is done. prfSalt
	// is offered to authenticators that implement the PRF extension.
	AwaitProof(ctx context.Context, challenge, prfSalt []byte) (*ProofOfPossession, error)

	// SupportsPRF reports whether the connected authenticator implements a
	// hardware-bound PRF extension.
	SupportsPRF() bool
}

// ProofEvent is delivered to a ListenForHSK waiter: either a proof or the
// error that ended the wait.
type ProofEvent struct {
	Proof *ProofOfPossession
	Err   error
}
