// Package hdkeys derives per-chain private keys and addresses from a BIP39
// recovery phrase. Derivation is a pure function: no side effects, no
// persistence, and the same phrase, chain, and account always yield the same
// key and address.
package hdkeys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	bip39 "github.com/tyler-smith/go-bip39"

	apperrors "github.com/strongroom-wallet/strongroom/pkg/errors"
	"github.com/strongroom-wallet/strongroom/pkg/types"
)

// bip44Purpose is the BIP44 purpose field (44').
const bip44Purpose = 44

// DerivePrivateKey derives the 32-byte private key for a chain and account
// from a recovery phrase. Malformed mnemonics (bad word, bad checksum) are
// rejected before any derivation happens.
func DerivePrivateKey(phrase string, chain types.Chain, account uint32) ([]byte, error) {
	if !chain.Valid() {
		return nil, apperrors.DerivationFailed(fmt.Sprintf("unsupported chain: %s", chain))
	}
	if !bip39.IsMnemonicValid(phrase) {
		return nil, apperrors.New(apperrors.CodeInvalidPhrase, "Invalid recovery phrase")
	}

	seed := bip39.NewSeed(phrase, "")
	defer zero(seed)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, apperrors.DerivationFailed(fmt.Sprintf("master key: %v", err))
	}
	defer master.Zero()

	// m / 44' / coin' / account'
	path := []uint32{
		hdkeychain.HardenedKeyStart + bip44Purpose,
		hdkeychain.HardenedKeyStart + chain.CoinType(),
		hdkeychain.HardenedKeyStart + account,
	}

	// EVM and bitcoin continue with the conventional external branch; solana
	// wallets harden the change level instead.
	switch chain {
	case types.ChainSolana:
		path = append(path, hdkeychain.HardenedKeyStart)
	default:
		path = append(path, 0, 0)
	}

	key := master
	for _, childIndex := range path {
		child, err := key.Derive(childIndex)
		if key != master {
			key.Zero()
		}
		if err != nil {
			return nil, apperrors.DerivationFailed(fmt.Sprintf("child derivation: %v", err))
		}
		key = child
	}
	defer key.Zero()

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, apperrors.DerivationFailed(fmt.Sprintf("private key extraction: %v", err))
	}

	out := make([]byte, 32)
	copy(out, privKey.Serialize())
	privKey.Zero()
	return out, nil
}

// Derive derives key material including the chain-correct address.
func Derive(phrase string, chain types.Chain, account uint32) (*types.DerivedKeyMaterial, error) {
	privateKey, err := DerivePrivateKey(phrase, chain, account)
	if err != nil {
		return nil, err
	}

	address, err := Address(privateKey, chain)
	if err != nil {
		zero(privateKey)
		return nil, err
	}

	return &types.DerivedKeyMaterial{
		PrivateKey: privateKey,
		Chain:      chain,
		Address:    address,
	}, nil
}

// Address derives the chain-correct address for a 32-byte private key.
// EVM addresses are checksum-cased; bitcoin addresses are mainnet P2WPKH;
// solana addresses are the base58 ed25519 public key.
func Address(privateKey []byte, chain types.Chain) (string, error) {
	if len(privateKey) != 32 {
		return "", apperrors.DerivationFailed(fmt.Sprintf("private key must be 32 bytes, got %d", len(privateKey)))
	}

	switch chain {
	case types.ChainEthereum:
		ecdsaKey, err := ethcrypto.ToECDSA(privateKey)
		if err != nil {
			return "", apperrors.DerivationFailed(fmt.Sprintf("secp256k1 key: %v", err))
		}
		return ethcrypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(), nil

	case types.ChainBitcoin:
		_, pubKey := btcec.PrivKeyFromBytes(privateKey)
		witnessProg := btcutil.Hash160(pubKey.SerializeCompressed())
		addr, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, &chaincfg.MainNetParams)
		if err != nil {
			return "", apperrors.DerivationFailed(fmt.Sprintf("p2wpkh address: %v", err))
		}
		return addr.EncodeAddress(), nil

	case types.ChainSolana:
		// The 32-byte derived key is used as an ed25519 seed.
		edKey := ed25519.NewKeyFromSeed(privateKey)
		pub := edKey.Public().(ed25519.PublicKey)
		pk := solana.PublicKeyFromBytes(pub)
		return pk.String(), nil

	default:
		return "", apperrors.DerivationFailed(fmt.Sprintf("unsupported chain: %s", chain))
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
