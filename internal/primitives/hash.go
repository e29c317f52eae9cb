// Package primitives implements the core value types shared by every
// component of the node: hashes, amounts, timestamps, addresses and
// signatures, plus the canonical byte encoding every hash and signature is
// computed over.
package primitives

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash is an opaque 256-bit value. Two hashes are equal iff their bytes are
// equal.
type Hash [32]byte

// ZeroHash is the all-zero hash, used as the absent parent marker.
var ZeroHash = Hash{}

func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the lower-case hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == ZeroHash }

// HashFromHex parses a 64-character lower-case hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("primitives: invalid hash hex %q: %w", s, err)
	}
	if len(b) != len(Hash{}) {
		return Hash{}, fmt.Errorf("primitives: hash must be %d bytes, got %d", len(Hash{}), len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// HashBytes returns SHA-256(b).
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// hashWire is the wire representation of a Hash used inside the canonical
// JSON of blocks, transactions, and the /chain RPC response.
type hashWire struct {
	SHA256Hex string `json:"sha256_hex"`
}

// MarshalJSON renders the hash as {"sha256_hex": "..."}, matching the wire
// protocol's head_hash representation.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(hashWire{SHA256Hex: h.Hex()})
}

// UnmarshalJSON accepts either the wrapped {"sha256_hex":"..."} form or a
// bare hex string, since several call sites (hash map keys, CLI flags) pass
// plain strings.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var wrapped hashWire
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.SHA256Hex != "" {
		parsed, err := HashFromHex(wrapped.SHA256Hex)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err != nil {
		return fmt.Errorf("primitives: invalid hash json %s: %w", data, err)
	}
	parsed, err := HashFromHex(plain)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Canonical returns the canonical byte encoding of v: the JSON object form
// of v with keys sorted lexicographically, UTF-8 encoded, and no
// insignificant whitespace. This is the single encoding every hash and
// signature in the system is computed over; bit-exactness here is the
// primary interop risk noted in the design.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("primitives: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("primitives: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashOf returns SHA-256 of the canonical encoding of v.
func HashOf(v interface{}) (Hash, error) {
	canon, err := Canonical(v)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(canon), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("primitives: encode string: %w", err)
		}
		buf.Write(encoded)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("primitives: encode key: %w", err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("primitives: unsupported type %T in canonical encoding", v)
	}
	return nil
}
