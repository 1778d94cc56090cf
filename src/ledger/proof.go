package ledger

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/engagemesh/engage/src/common"
	"github.com/engagemesh/engage/src/crypto"
	"github.com/engagemesh/engage/src/crypto/keys"
)

// EventType enumerates the qualifying network actions an engagement proof may
// attest to.
type EventType string

const (
	EventRelay     EventType = "relay"
	EventDecode    EventType = "decode"
	EventVerify    EventType = "verify"
	EventHeartbeat EventType = "heartbeat"
	EventMessage   EventType = "message"
)

// ValidEventType reports whether t is a known engagement event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventRelay, EventDecode, EventVerify, EventHeartbeat, EventMessage:
		return true
	}
	return false
}

// EngagementProof is the attestation that a peer performed a qualifying
// action. It is hashed and signed in canonical (sorted-key) JSON form.
type EngagementProof struct {
	NodeID     string    `json:"nodeId"`
	EventType  EventType `json:"eventType"`
	Timestamp  int64     `json:"timestamp"`
	Nonce      string    `json:"nonce"`
	WorkFactor int       `json:"workFactor,omitempty"`
}

// SignedProof wraps an EngagementProof with the author's signature and public
// key. Timestamp and Nonce mirror the inner proof for replay tracking without
// re-decoding the data.
type SignedProof struct {
	Data      *EngagementProof `json:"data"`
	Signature string           `json:"signature"`
	PublicKey string           `json:"publicKey"`
	Timestamp int64            `json:"timestamp"`
	Nonce     string           `json:"nonce"`
}

// NewNonce returns a fresh random nonce: 16 bytes of entropy in hex.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// BuildProof assembles and signs an engagement proof with a fresh random
// nonce.
func BuildProof(nodeID string, eventType EventType, workFactor int, privKey *ecdsa.PrivateKey) (*SignedProof, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	proof := &EngagementProof{
		NodeID:     nodeID,
		EventType:  eventType,
		Timestamp:  time.Now().UnixMilli(),
		Nonce:      nonce,
		WorkFactor: workFactor,
	}

	return SignProof(proof, privKey)
}

// SignProof signs a prepared engagement proof.
func SignProof(proof *EngagementProof, privKey *ecdsa.PrivateKey) (*SignedProof, error) {
	digest, err := crypto.HashCanonical(proof)
	if err != nil {
		return nil, err
	}

	r, s, err := keys.Sign(privKey, digest)
	if err != nil {
		return nil, err
	}

	return &SignedProof{
		Data:      proof,
		Signature: keys.EncodeSignature(r, s),
		PublicKey: keys.PublicKeyHex(&privKey.PublicKey),
		Timestamp: proof.Timestamp,
		Nonce:     proof.Nonce,
	}, nil
}

// PubKey parses the author's public key, or returns nil when malformed.
func (sp *SignedProof) PubKey() *ecdsa.PublicKey {
	pubBytes, err := common.DecodeFromString(sp.PublicKey)
	if err != nil {
		return nil
	}
	return keys.ToPublicKey(pubBytes)
}

// Verify checks the proof signature and the coherence of the wrapper fields.
// It returns false, never an error, on malformed input.
func (sp *SignedProof) Verify() bool {
	if sp.Data == nil {
		return false
	}

	if !ValidEventType(sp.Data.EventType) {
		return false
	}

	// wrapper fields must mirror the signed data
	if sp.Timestamp != sp.Data.Timestamp || sp.Nonce != sp.Data.Nonce {
		return false
	}

	pubKey := sp.PubKey()
	if pubKey == nil {
		return false
	}

	digest, err := crypto.HashCanonical(sp.Data)
	if err != nil {
		return false
	}

	r, s, err := keys.DecodeSignature(sp.Signature)
	if err != nil {
		return false
	}

	return keys.Verify(pubKey, digest, r, s)
}

// CheckFreshness verifies that the proof timestamp falls inside the
// acceptance window: not older than maxAge, not more than maxFutureSkew in
// the future.
func (sp *SignedProof) CheckFreshness(now time.Time, maxAge time.Duration) error {
	ts := time.UnixMilli(sp.Timestamp)

	if ts.Before(now.Add(-maxAge)) {
		return NewValidationErr(ExpiredAttestation, "", "proof timestamp too old")
	}

	if ts.After(now.Add(maxFutureSkew)) {
		return NewValidationErr(ExpiredAttestation, "", "proof timestamp in the future")
	}

	return nil
}
