// Package hsk derives wallet-binding keys from proof of possession of an
// external hardware security key. Derivation runs HKDF over assertion
// material with a per-session salt; the raw credential identifier is hashed
// and discarded. The engine is a finite-state machine with observable,
// ordered transitions.
package hsk

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/strongroom-wallet/strongroom/internal/logger"
	"github.com/strongroom-wallet/strongroom/internal/metrics"
	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

const (
	challengeSize = 32
	saltSize      = 32
	keyHandleSize = 32

	// minProofSize is the minimum viable attestation size in bytes.
	minProofSize = 64

	// domainSeparator keeps binding keys distinct from any other HKDF use
	// of the same assertion material.
	domainSeparator = "strongroom-hsk-binding-v1"
)

// DerivationResult is the outcome of a successful derivation.
type DerivationResult struct {
	// KeyHandle is the 32-byte derived key. It must only ever be persisted
	// inside the secure vault, keyed by wallet address.
	KeyHandle []byte

	// CredentialIDHash is the one-way hash of the device credential
	// identifier. The raw identifier is discarded.
	CredentialIDHash []byte

	// Strategy records how the key was derived. When the PRF extension is
	// unsupported this is signatureBased, never a silent upgrade.
	Strategy types.DerivationStrategy

	// Salt is the per-session derivation salt, required to re-derive
	// signature-based keys.
	Salt []byte

	// VerificationDigest lets a later VerifyBinding confirm re-derivation
	// without exposing the key handle.
	VerificationDigest []byte
}

// Engine drives HSK key derivation ceremonies. All mutable state (the
// machine state, challenge, and salt buffers) is guarded by a single mutex.
type Engine struct {
	mu    sync.Mutex
	state State
	subs  []chan State

	transport   Transport
	platformPRF bool
	hwTimeout   time.Duration

	challenge []byte
	salt      []byte

	// waiters are resolved on cancel so no caller is left suspended.
	waiters      []chan ProofEvent
	cancelListen context.CancelFunc
}

// NewEngine creates an engine over the given authenticator transport.
// platformPRF declares whether the host platform can surface the PRF
// extension at all; hwTimeout bounds every hardware prompt.
func NewEngine(transport Transport, platformPRF bool, hwTimeout time.Duration) *Engine {
	return &Engine{
		state:       StateInitiation,
		transport:   transport,
		platformPRF: platformPRF,
		hwTimeout:   hwTimeout,
	}
}

// RecommendedStrategy returns the strategy the platform should offer for a
// new wallet binding. The legacy credential-ID strategy is never
// recommended under any condition.
func (e *Engine) RecommendedStrategy() types.DerivationStrategy {
	if e.platformPRF && e.transport.SupportsPRF() {
		return types.StrategyPRFExtension
	}
	return types.StrategySignatureBased
}

// ListenForHSK starts a ceremony: it generates a fresh 32-byte challenge and
// a 32-byte per-session derivation salt, transitions to AwaitingInsertion,
// and begins waiting for the user to tap a security key. The returned
// channel delivers exactly one ProofEvent.
func (e *Engine) ListenForHSK(ctx context.Context) (<-chan ProofEvent, error) {
	e.mu.Lock()
	if e.state != StateInitiation {
		e.mu.Unlock()
		return nil, apperrors.NewWithDetail(apperrors.CodeDetectionFailed,
			"Security key detection failed",
			fmt.Sprintf("cannot listen from state %s", e.state))
	}

	challenge := make([]byte, challengeSize)
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		e.mu.Unlock()
		return nil, apperrors.NewWithDetail(apperrors.CodeDetectionFailed,
			"Security key detection failed", fmt.Sprintf("challenge generation: %v", err))
	}
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		e.mu.Unlock()
		return nil, apperrors.NewWithDetail(apperrors.CodeDetectionFailed,
			"Security key detection failed", fmt.Sprintf("salt generation: %v", err))
	}

	e.challenge = challenge
	e.salt = salt
	e.transition(StateAwaitingInsertion)

	listenCtx, cancel := context.WithTimeout(ctx, e.hwTimeout)
	e.cancelListen = cancel

	events := make(chan ProofEvent, 1)
	e.waiters = append(e.waiters, events)
	e.mu.Unlock()

	go func() {
		proof, err := e.transport.AwaitProof(listenCtx, challenge, salt)
		if err != nil {
			err = translateHardwareErr(err)
		}
		e.resolveWaiter(events, ProofEvent{Proof: proof, Err: err})
	}()

	return events, nil
}

// resolveWaiter delivers an event to a waiter unless cancellation already
// resolved it.
func (e *Engine) resolveWaiter(waiter chan ProofEvent, event ProofEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.waiters {
		if w == waiter {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			waiter <- event
			return
		}
	}
}

// DeriveKey derives the wallet-binding key from proof of possession.
// Validation gates run in order, each with a distinct error: proof present
// and at least 64 bytes, challenge set and exactly 32 bytes, salt set and
// exactly 32 bytes.
func (e *Engine) DeriveKey(ctx context.Context, proof *ProofOfPossession) (*DerivationResult, error) {
	e.mu.Lock()

	if e.state != StateAwaitingInsertion {
		e.mu.Unlock()
		return nil, apperrors.DerivationFailed(fmt.Sprintf("cannot derive from state %s", e.state))
	}

	if proof == nil || proof.Size() < minProofSize {
		e.failLocked()
		return nil, apperrors.InvalidCredential("proof of possession missing or below minimum attestation size")
	}
	if len(e.challenge) != challengeSize {
		e.failLocked()
		return nil, apperrors.DerivationFailed("session challenge missing or malformed")
	}
	if len(e.salt) != saltSize {
		e.failLocked()
		return nil, apperrors.DerivationFailed("session salt missing or malformed")
	}

	e.transition(StateDerivingKey)
	challenge := e.challenge
	salt := append([]byte(nil), e.salt...)
	e.mu.Unlock()

	strategy := types.StrategySignatureBased
	var ikm []byte
	if len(proof.PRFOutput) > 0 && e.platformPRF && e.transport.SupportsPRF() {
		// Hardware-bound PRF output; never leaves the device unevaluated.
		strategy = types.StrategyPRFExtension
		ikm = proof.PRFOutput
	} else {
		// Common external-key case: HKDF over the signed assertion plus the
		// session challenge.
		ikm = make([]byte, 0, len(proof.AssertionData)+len(proof.Signature)+len(challenge))
		ikm = append(ikm, proof.AssertionData...)
		ikm = append(ikm, proof.Signature...)
		ikm = append(ikm, challenge...)
	}

	keyHandle, digest, err := expandKey(ikm, salt)
	if err != nil {
		e.fail()
		metrics.Derivations.WithLabelValues(string(strategy), metrics.OutcomeError).Inc()
		return nil, err
	}

	credentialHash := sha256.Sum256(proof.CredentialID)

	e.mu.Lock()
	e.transition(StateComplete)
	e.mu.Unlock()

	metrics.Derivations.WithLabelValues(string(strategy), metrics.OutcomeOK).Inc()
	logger.Debug(ctx, "derived HSK binding key",
		"strategy", string(strategy),
		"credential", logger.Fingerprint(string(credentialHash[:])))

	return &DerivationResult{
		KeyHandle:          keyHandle,
		CredentialIDHash:   credentialHash[:],
		Strategy:           strategy,
		Salt:               salt,
		VerificationDigest: digest,
	}, nil
}

// DeriveLegacy re-derives a key for a pre-existing legacy binding from the
// device credential identifier alone. It exists only for migration and is
// never offered for new wallets.
func (e *Engine) DeriveLegacy(credentialID []byte) (*DerivationResult, error) {
	if len(credentialID) == 0 {
		return nil, apperrors.InvalidCredential("empty credential identifier")
	}

	keyHandle, digest, err := expandKey(credentialID, nil)
	if err != nil {
		metrics.Derivations.WithLabelValues(string(types.StrategyLegacyCredentialID), metrics.OutcomeError).Inc()
		return nil, err
	}

	credentialHash := sha256.Sum256(credentialID)
	metrics.Derivations.WithLabelValues(string(types.StrategyLegacyCredentialID), metrics.OutcomeOK).Inc()

	return &DerivationResult{
		KeyHandle:          keyHandle,
		CredentialIDHash:   credentialHash[:],
		Strategy:           types.StrategyLegacyCredentialID,
		VerificationDigest: digest,
	}, nil
}

// VerifyBinding proves the bound HSK is still present by running a fresh
// assertion round-trip and checking the presented credential against the
// binding's credential hash.
func (e *Engine) VerifyBinding(ctx context.Context, credentialIDHash, salt []byte) error {
	e.mu.Lock()
	if e.state.Terminal() || e.state == StateInitiation {
		e.transition(StateVerifying)
	} else {
		e.mu.Unlock()
		return apperrors.VerificationFailed(fmt.Sprintf("cannot verify from state %s", e.state))
	}

	challenge := make([]byte, challengeSize)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		e.failLocked()
		return apperrors.VerificationFailed(fmt.Sprintf("challenge generation: %v", err))
	}
	e.challenge = challenge

	verifyCtx, cancel := context.WithTimeout(ctx, e.hwTimeout)
	e.cancelListen = cancel

	waiter := make(chan ProofEvent, 1)
	e.waiters = append(e.waiters, waiter)
	e.mu.Unlock()

	go func() {
		proof, err := e.transport.AwaitProof(verifyCtx, challenge, salt)
		if err != nil {
			err = translateHardwareErr(err)
		}
		e.resolveWaiter(waiter, ProofEvent{Proof: proof, Err: err})
	}()

	event := <-waiter
	if event.Err != nil {
		e.fail()
		return event.Err
	}
	if event.Proof == nil || event.Proof.Size() < minProofSize {
		e.fail()
		return apperrors.VerificationFailed("assertion below minimum size")
	}

	presented := sha256.Sum256(event.Proof.CredentialID)
	if subtle.ConstantTimeCompare(presented[:], credentialIDHash) != 1 {
		e.fail()
		return apperrors.VerificationFailed("presented security key does not match binding")
	}

	e.mu.Lock()
	e.transition(StateComplete)
	e.mu.Unlock()
	return nil
}

// CancelOperation tears down any in-flight hardware request, resolves every
// pending waiter with UserCancelled, and resets the machine to Initiation.
// It is idempotent.
func (e *Engine) CancelOperation() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelListen != nil {
		e.cancelListen()
		e.cancelListen = nil
	}

	for _, waiter := range e.waiters {
		waiter <- ProofEvent{Err: apperrors.ErrUserCancelled}
	}
	e.waiters = nil

	if !e.state.Terminal() && e.state != StateInitiation {
		e.transition(StateError)
	}
	e.transition(StateInitiation)
}

// Reset cancels any in-flight operation and zeroes the in-memory challenge
// and salt buffers before dropping them.
func (e *Engine) Reset() {
	e.CancelOperation()

	e.mu.Lock()
	defer e.mu.Unlock()
	zeroBytes(e.challenge)
	zeroBytes(e.salt)
	e.challenge = nil
	e.salt = nil
}

// fail transitions to the error terminal state.
func (e *Engine) fail() {
	e.mu.Lock()
	e.failLocked()
}

// failLocked transitions to StateError and releases the lock.
func (e *Engine) failLocked() {
	e.transition(StateError)
	e.mu.Unlock()
}

// expandKey runs HKDF-Extract/Expand over the input keying material and
// returns a 32-byte key handle plus a 32-byte verification digest. An
// all-zero key handle fails the entropy sanity check.
func expandKey(ikm, salt []byte) (keyHandle, digest []byte, err error) {
	reader := hkdf.New(sha256.New, ikm, salt, []byte(domainSeparator))

	keyHandle = make([]byte, keyHandleSize)
	if _, err := io.ReadFull(reader, keyHandle); err != nil {
		return nil, nil, apperrors.DerivationFailed(fmt.Sprintf("hkdf expand: %v", err))
	}

	digest = make([]byte, 32)
	if _, err := io.ReadFull(reader, digest); err != nil {
		return nil, nil, apperrors.DerivationFailed(fmt.Sprintf("hkdf expand: %v", err))
	}

	if allZero(keyHandle) {
		return nil, nil, apperrors.DerivationFailed("derived key failed entropy sanity check")
	}

	return keyHandle, digest, nil
}

// translateHardwareErr maps transport failures onto the core taxonomy.
func translateHardwareErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout
	case errors.Is(err, context.Canceled):
		return apperrors.ErrUserCancelled
	default:
		if _, ok := apperrors.IsCoreError(err); ok {
			return err
		}
		return apperrors.NewWithDetail(apperrors.CodeHardwareUnavailable,
			"Security hardware unavailable", err.Error())
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
