package primitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Address identifies an account by its raw ed25519 public key. The wire
// encoding is a plain lower-case hex string, per the wallet's "address hex
// is the raw 32-byte key" convention; unlike Hash it is not wrapped in an
// object, since addresses never need to disambiguate against other digest
// kinds on the wire.
type Address [ed25519.PublicKeySize]byte

// AddressFromPublicKey derives an Address from an ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) (Address, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Address{}, fmt.Errorf("primitives: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	var a Address
	copy(a[:], pub)
	return a, nil
}

// AddressFromHex parses a hex-encoded address.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("primitives: invalid address hex %q: %w", s, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return Address{}, fmt.Errorf("primitives: address must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

func (a Address) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(a[:]) }
func (a Address) Bytes() []byte                { return a[:] }
func (a Address) Hex() string                  { return hex.EncodeToString(a[:]) }
func (a Address) String() string               { return a.Hex() }
func (a Address) IsZero() bool                 { return a == Address{} }

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Hex() + `"`), nil
}

func (a *Address) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("primitives: address must be a JSON string")
	}
	parsed, err := AddressFromHex(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Signature is a raw ed25519 signature, encoded on the wire as lower-case
// hex.
type Signature [ed25519.SignatureSize]byte

func (s Signature) Bytes() []byte { return s[:] }
func (s Signature) Hex() string   { return hex.EncodeToString(s[:]) }
func (s Signature) String() string { return s.Hex() }
func (s Signature) IsZero() bool  { return s == Signature{} }

func SignatureFromHex(str string) (Signature, error) {
	b, err := hex.DecodeString(str)
	if err != nil {
		return Signature{}, fmt.Errorf("primitives: invalid signature hex %q: %w", str, err)
	}
	if len(b) != ed25519.SignatureSize {
		return Signature{}, fmt.Errorf("primitives: signature must be %d bytes, got %d", ed25519.SignatureSize, len(b))
	}
	var sig Signature
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.Hex() + `"`), nil
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) < 2 || str[0] != '"' || str[len(str)-1] != '"' {
		return fmt.Errorf("primitives: signature must be a JSON string")
	}
	parsed, err := SignatureFromHex(str[1 : len(str)-1])
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// KeyPair is an ed25519 signing identity: the address a wallet spends from
// and mines to, paired with the private key that authorizes spends.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("primitives: generate keypair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed reconstructs a key pair from a 32-byte ed25519 seed, as
// read back from a wallet file.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("primitives: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

func (k *KeyPair) Seed() []byte { return k.Private.Seed() }

func (k *KeyPair) Address() Address {
	a, _ := AddressFromPublicKey(k.Public)
	return a
}

// Sign produces an ed25519 signature over message.
func (k *KeyPair) Sign(message []byte) Signature {
	raw := ed25519.Sign(k.Private, message)
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// Verify checks that sig is a valid ed25519 signature over message under
// addr's public key.
func Verify(addr Address, message []byte, sig Signature) bool {
	return ed25519.Verify(addr.PublicKey(), message, sig[:])
}

// RandomBytes returns n cryptographically random bytes, used for mining
// entropy.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("primitives: random bytes: %w", err)
	}
	return b, nil
}

// RandomHex returns n random bytes hex-encoded.
func RandomHex(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
