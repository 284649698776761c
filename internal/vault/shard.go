package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/shamir"

	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
)

// Sharded storage splits a secret 2-of-2 with Shamir's Secret Sharing and
// stores each half as its own envelope, so no single credential record holds
// the whole secret. Used for derivation salts. This is storage hygiene, not
// threshold signing.

const (
	shardThreshold = 2
	shardTotal     = 2
)

func shardID(secretID string, index int) string {
	return fmt.Sprintf("%s.shard%d", secretID, index)
}

// StoreSharded splits plaintext into two shares and stores both.
func (v *Vault) StoreSharded(ctx context.Context, secretID string, plaintext []byte) error {
	if len(plaintext) == 0 {
		return apperrors.StoreError("empty secret")
	}

	shares, err := shamir.Split(plaintext, shardTotal, shardThreshold)
	if err != nil {
		return apperrors.StoreError(fmt.Sprintf("secret split: %v", err))
	}
	defer func() {
		for _, share := range shares {
			zero(share)
		}
	}()

	for i, share := range shares {
		if err := v.Store(ctx, shardID(secretID, i), share); err != nil {
			// Do not leave a lone share behind on partial failure.
			for j := 0; j < i; j++ {
				_ = v.Delete(ctx, shardID(secretID, j))
			}
			return err
		}
	}

	return nil
}

// RetrieveSharded reads both shares and reconstructs the secret. The caller
// owns the returned plaintext and must zero it after use.
func (v *Vault) RetrieveSharded(ctx context.Context, secretID string) ([]byte, error) {
	shares := make([][]byte, 0, shardTotal)
	defer func() {
		for _, share := range shares {
			zero(share)
		}
	}()

	for i := 0; i < shardTotal; i++ {
		share, err := v.Retrieve(ctx, shardID(secretID, i))
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}

	plaintext, err := shamir.Combine(shares)
	if err != nil {
		return nil, apperrors.StoreError(fmt.Sprintf("secret combine: %v", err))
	}

	return plaintext, nil
}

// DeleteSharded removes both shares. A share that is already absent is
// tolerated; other failures are surfaced.
func (v *Vault) DeleteSharded(ctx context.Context, secretID string) error {
	for i := 0; i < shardTotal; i++ {
		if err := v.Delete(ctx, shardID(secretID, i)); err != nil {
			if coreErr, ok := apperrors.IsCoreError(err); ok && coreErr.Code == apperrors.CodeNotFound {
				continue
			}
			return err
		}
	}
	return nil
}
