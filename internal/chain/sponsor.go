// Package chain talks to the chain node over JSON-RPC and holds the sponsor
// signing account used to pay gas for every submitted transaction.
package chain

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"

	"github.com/chesschain/gasreld/pkg/helpers"
)

// bech32HRP is the human-readable part of a Sui-style private key export.
const bech32HRP = "suiprivkey"

// Sponsor holds the server-owned Ed25519 keypair used to sign and pay for
// every transaction the dispatcher submits. Unlike a user wallet there is no
// derivation tree: one operator-provisioned secret maps to exactly one
// signing key for the lifetime of the deployment.
type Sponsor struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// NewSponsor decodes secret into a Sponsor. secret may be:
//   - a BIP39 mnemonic phrase (the seed's first 32 bytes become the Ed25519 seed)
//   - a bech32 string with the "suiprivkey" human-readable part
//   - a 64-character hex string, with or without a leading "0x"
func NewSponsor(secret string) (*Sponsor, error) {
	seed, err := decodeSponsorSecret(strings.TrimSpace(secret))
	if err != nil {
		return nil, err
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	return &Sponsor{
		privateKey: priv,
		publicKey:  pub,
		address:    addressFromPublicKey(pub),
	}, nil
}

func decodeSponsorSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("sponsor secret is empty")
	}

	if bip39.IsMnemonicValid(secret) {
		seed := bip39.NewSeed(secret, "")
		return seed[:32], nil
	}

	if strings.HasPrefix(secret, bech32HRP+"1") {
		hrp, data, err := bech32.DecodeNoLimit(secret)
		if err != nil {
			return nil, fmt.Errorf("decode bech32 sponsor secret: %w", err)
		}
		if hrp != bech32HRP {
			return nil, fmt.Errorf("unexpected bech32 human-readable part %q, want %q", hrp, bech32HRP)
		}
		decoded, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, fmt.Errorf("convert bech32 sponsor secret bits: %w", err)
		}
		// A Sui bech32 export is a one-byte key-scheme flag (0x00 = Ed25519)
		// followed by the 32-byte seed.
		if len(decoded) != 33 {
			return nil, fmt.Errorf("bech32 sponsor secret has %d payload bytes, want 33", len(decoded))
		}
		if decoded[0] != 0x00 {
			return nil, fmt.Errorf("bech32 sponsor secret uses key scheme %#x, want Ed25519 (0x00)", decoded[0])
		}
		return decoded[1:], nil
	}

	hexSecret := strings.TrimPrefix(secret, "0x")
	if len(hexSecret) == 64 {
		raw, err := helpers.HexToBytes(hexSecret)
		if err != nil {
			return nil, fmt.Errorf("decode hex sponsor secret: %w", err)
		}
		return raw, nil
	}

	return nil, fmt.Errorf("sponsor secret is not a valid mnemonic, %s-bech32 key, or 64-character hex secret", bech32HRP)
}

// addressFromPublicKey derives a chain address as the blake2b-256 hash of the
// 1-byte Ed25519 scheme flag plus the public key, hex-encoded with a 0x prefix.
func addressFromPublicKey(pub ed25519.PublicKey) string {
	flagged := append([]byte{0x00}, pub...)
	digest := blake2b.Sum256(flagged)
	return helpers.BytesToHex(digest[:])
}

// PublicKey returns the sponsor's Ed25519 public key.
func (s *Sponsor) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// Address returns the sponsor's derived on-chain address.
func (s *Sponsor) Address() string {
	return s.address
}

// Sign signs the given bytes with the sponsor's private key. Gateway.Submit
// passes it the built transaction bytes.
func (s *Sponsor) Sign(digest []byte) []byte {
	return ed25519.Sign(s.privateKey, digest)
}
