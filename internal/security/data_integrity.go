// Package security provides report sealing and address normalization
package security

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SealAlgorithm names the signature scheme used in seals
const SealAlgorithm = "secp256k1-keccak256"

var (
	// ErrInvalidAddress marks a string that is not a 20-byte hex address
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSealMismatch marks a payload that does not match its seal
	ErrSealMismatch = errors.New("seal mismatch")
)

// NormalizeAddress validates an Ethereum address and returns its EIP-55
// checksum form.
func NormalizeAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if !common.IsHexAddress(a) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(a).Hex(), nil
}

// Seal carries integrity hashes and a recoverable signature over a
// payload's JSON encoding.
type Seal struct {
	SHA256    string `json:"sha256"`
	Keccak256 string `json:"keccak256"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
	Algorithm string `json:"algorithm"`
}

// Signer seals response payloads with a secp256k1 key
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner loads a hex-encoded private key, with or without 0x prefix
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return newSigner(key), nil
}

// GenerateSigner creates a signer with a fresh random key
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	s := &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
	logrus.WithField("signer", s.address.Hex()).Info("Report signer initialized")
	return s
}

// Address returns the checksum address of the signing key
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Seal hashes and signs the JSON encoding of payload
func (s *Signer) Seal(payload any) (Seal, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Seal{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	sha := sha256.Sum256(payloadBytes)
	keccak := crypto.Keccak256Hash(payloadBytes)

	signature, err := crypto.Sign(keccak.Bytes(), s.privateKey)
	if err != nil {
		return Seal{}, fmt.Errorf("failed to sign payload: %w", err)
	}

	return Seal{
		SHA256:    hex.EncodeToString(sha[:]),
		Keccak256: keccak.Hex(),
		Signature: hexutil.Encode(signature),
		Signer:    s.address.Hex(),
		Algorithm: SealAlgorithm,
	}, nil
}

// VerifySeal checks the hashes of payload and recovers the signer from the
// signature.
func VerifySeal(payload any, seal Seal) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	sha := sha256.Sum256(payloadBytes)
	if hex.EncodeToString(sha[:]) != seal.SHA256 {
		return fmt.Errorf("%w: SHA256 hash", ErrSealMismatch)
	}
	keccak := crypto.Keccak256Hash(payloadBytes)
	if keccak.Hex() != seal.Keccak256 {
		return fmt.Errorf("%w: Keccak256 hash", ErrSealMismatch)
	}

	signature, err := hexutil.Decode(seal.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	pub, err := crypto.SigToPub(keccak.Bytes(), signature)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub).Hex(); recovered != seal.Signer {
		return fmt.Errorf("%w: signed by %s, seal claims %s", ErrSealMismatch, recovered, seal.Signer)
	}
	return nil
}
