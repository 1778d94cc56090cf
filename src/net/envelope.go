package net

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/engagemesh/engage/src/ledger"
)

// EnvelopeType enumerates the messages exchanged with the gossip layer. The
// transport itself is an external collaborator; this package only owns the
// envelope contract.
type EnvelopeType string

const (
	// EnvelopeRelay carries a vertex authored or forwarded by a peer.
	EnvelopeRelay EnvelopeType = "relay"
	// EnvelopeVerification carries a vertex recording a verification action.
	EnvelopeVerification EnvelopeType = "verification"
	// EnvelopeHeartbeat announces liveness; it may carry a heartbeat vertex.
	EnvelopeHeartbeat EnvelopeType = "heartbeat"
)

// ValidEnvelopeType reports whether t is a known envelope type.
func ValidEnvelopeType(t EnvelopeType) bool {
	switch t {
	case EnvelopeRelay, EnvelopeVerification, EnvelopeHeartbeat:
		return true
	}
	return false
}

// Envelope is the unit the node consumes from, and produces for, the
// transport collaborator.
type Envelope struct {
	Type      EnvelopeType   `json:"type"`
	Vertex    *ledger.Vertex `json:"vertex,omitempty"`
	NodeID    string         `json:"nodeId,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Marshal returns the canonical JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a JSON encoded envelope and validates its type.
func (e *Envelope) Unmarshal(data []byte) error {
	b := bytes.NewReader(data)
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(e); err != nil {
		return err
	}

	if !ValidEnvelopeType(e.Type) {
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}

	return nil
}
