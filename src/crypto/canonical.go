package crypto

import (
	"bytes"
	"reflect"

	"github.com/ugorji/go/codec"
)

/*
Canonical JSON encoding with lexicographically sorted object keys. Hashes and
signatures are always computed over this form, so that two semantically
identical objects produce the same bytes regardless of how they were
constructed. The codec's Canonical flag only sorts map keys, so values are
round-tripped through a map representation before the final encoding.
*/

var mapStringIntf = reflect.TypeOf(map[string]interface{}(nil))

func canonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = mapStringIntf
	return jh
}

// CanonicalJSON returns the canonical JSON encoding of v: object keys sorted
// lexicographically at every nesting level.
func CanonicalJSON(v interface{}) ([]byte, error) {
	jh := canonicalHandle()

	// first pass flattens structs into maps so that key order is under the
	// encoder's control rather than struct field order
	raw := new(bytes.Buffer)
	if err := codec.NewEncoder(raw, jh).Encode(v); err != nil {
		return nil, err
	}

	var intermediate interface{}
	if err := codec.NewDecoder(bytes.NewReader(raw.Bytes()), jh).Decode(&intermediate); err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	if err := codec.NewEncoder(out, jh).Encode(intermediate); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// HashCanonical returns the SHA256 hash of the canonical JSON encoding of v.
func HashCanonical(v interface{}) ([]byte, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return SHA256(b), nil
}

// HashCanonicalHex is HashCanonical with a lowercase hex string result.
func HashCanonicalHex(v interface{}) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}
