package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uuzor/predictx/internal/domain"
)

// Signer signs gateway handshake challenges with a secp256k1 wallet key. It
// implements domain.Signer. The digest follows the Ethereum personal-message
// scheme so the remote node can recover and verify the wallet address from
// the signature alone.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key (with
// or without 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, fmt.Errorf("crypto/signer: %w", domain.ErrSignerUnconfigured)
	}

	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	return &Signer{
		privateKey: pk,
		address:    addr.Hex(),
	}, nil
}

// Address returns the wallet address derived from the signer's private key.
func (s *Signer) Address() string {
	return s.address
}

// Sign signs the challenge message and returns the hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) Sign(message string) (string, error) {
	if s == nil || s.privateKey == nil {
		return "", fmt.Errorf("crypto/signer: %w", domain.ErrSignerUnconfigured)
	}

	digest := accounts.TextHash([]byte(message))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; recovery expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}
