package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/ugorji/go/codec"

	"github.com/engagemesh/engage/src/crypto"
	"github.com/engagemesh/engage/src/crypto/keys"
)

// Genesis is the reserved parent reference denoting "no parent": 64
// hexadecimal zero characters, the width of a SHA256 digest in hex.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// PayloadType is a closed union of the application payloads a vertex may
// carry.
type PayloadType string

const (
	// PayloadMessage carries user content.
	PayloadMessage PayloadType = "message"
	// PayloadVerification records a peer verifying another peer's activity.
	PayloadVerification PayloadType = "verification"
	// PayloadEngagement records a countable network action.
	PayloadEngagement PayloadType = "engagement"
)

// ValidPayloadType reports whether t is part of the closed union.
func ValidPayloadType(t PayloadType) bool {
	switch t {
	case PayloadMessage, PayloadVerification, PayloadEngagement:
		return true
	}
	return false
}

// Payload is the typed application content of a vertex.
type Payload struct {
	Type      PayloadType            `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Hash returns the lowercase hex SHA256 of the canonical (sorted-key) JSON
// encoding of the payload.
func (p *Payload) Hash() (string, error) {
	return crypto.HashCanonicalHex(p)
}

// Vertex is the ledger's atomic unit. Hash and Signature are immutable after
// creation; only CumulativeWeight, Anchored and AnchorTimestamp may be
// updated by the engine.
type Vertex struct {
	Hash        string       `json:"vertexHash"`
	NodeID      string       `json:"nodeId"`
	Tip1        string       `json:"tipReference1"`
	Tip2        string       `json:"tipReference2"`
	Depth       int          `json:"depth"`
	Payload     Payload      `json:"payload"`
	PayloadHash string       `json:"payloadHash"`
	Proof       *SignedProof `json:"engagementProof"`
	Signature   string       `json:"signature"`

	CumulativeWeight int64 `json:"cumulativeWeight"`
	Anchored         bool  `json:"isAnchored"`
	AnchorTimestamp  int64 `json:"anchorTimestamp,omitempty"`

	// CreatedAt is the local insertion timestamp in milliseconds. It is used
	// for pruning and recency, and is not covered by the hash or signature.
	CreatedAt int64 `json:"createdAt"`
}

// hashInput returns the exact tuple covered by the vertex hash. Key order is
// fixed by canonical encoding; any reordering changes the hash and breaks
// verification.
func hashInput(tip1, tip2, payloadHash, nodeID string, timestamp int64) map[string]interface{} {
	return map[string]interface{}{
		"tip1":    tip1,
		"tip2":    tip2,
		"payload": payloadHash,
		"node":    nodeID,
		"ts":      timestamp,
	}
}

// ComputeHash recomputes the vertex hash from the vertex's own fields. Any
// verifier can reproduce the hash from the same five inputs.
func (v *Vertex) ComputeHash() (string, error) {
	return crypto.HashCanonicalHex(hashInput(v.Tip1, v.Tip2, v.PayloadHash, v.NodeID, v.Payload.Timestamp))
}

// SignBytes returns the bytes covered by the vertex signature: the raw digest
// encoded by the hex vertex hash.
func (v *Vertex) SignBytes() ([]byte, error) {
	return hex.DecodeString(v.Hash)
}

// Sign signs the vertex hash with an ecdsa key. The vertex hash must be set.
func (v *Vertex) Sign(privKey *ecdsa.PrivateKey) error {
	signBytes, err := v.SignBytes()
	if err != nil {
		return err
	}

	r, s, err := keys.Sign(privKey, signBytes)
	if err != nil {
		return err
	}

	v.Signature = keys.EncodeSignature(r, s)

	return nil
}

// Verify checks the vertex signature against the public key embedded in the
// engagement proof, and the proof's own signature. It returns false, never an
// error, on malformed input; callers treat false and error identically as
// rejection.
func (v *Vertex) Verify() bool {
	if v.Proof == nil {
		return false
	}

	// proof signature first
	if !v.Proof.Verify() {
		return false
	}

	pubKey := v.Proof.PubKey()
	if pubKey == nil {
		return false
	}

	signBytes, err := v.SignBytes()
	if err != nil {
		return false
	}

	r, s, err := keys.DecodeSignature(v.Signature)
	if err != nil {
		return false
	}

	return keys.Verify(pubKey, signBytes, r, s)
}

// Marshal returns the canonical JSON encoding of the vertex, used both for
// storage and for the network envelope.
func (v *Vertex) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a JSON encoded vertex.
func (v *Vertex) Unmarshal(data []byte) error {
	b := bytes.NewReader(data)
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(v)
}

// IsGenesisRef reports whether a parent reference is the genesis sentinel.
func IsGenesisRef(ref string) bool {
	return ref == Genesis
}
