package evm

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/chain"
)

// GenerateKey creates a new secp256k1 account.
func GenerateKey() (chain.KeyPair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return chain.KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return chain.KeyPair{
		Address: domain.Address(crypto.PubkeyToAddress(key.PublicKey).Hex()),
		Secret:  "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
	}, nil
}

// AddressFromSecret derives the checksummed address of a private key.
func AddressFromSecret(secret string) (domain.Address, error) {
	key, err := parseKey(secret)
	if err != nil {
		return "", err
	}
	return domain.Address(crypto.PubkeyToAddress(key.PublicKey).Hex()), nil
}

func parseKey(secret string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(secret), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
