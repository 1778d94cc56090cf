package ledger

import (
	"crypto/ecdsa"
	"time"
)

// Builder assembles signed vertices for a single authoring node.
type Builder struct {
	nodeID  string
	privKey *ecdsa.PrivateKey

	// now is the clock used for CreatedAt; overridable in tests.
	now func() time.Time
}

// NewBuilder creates a Builder for the given node identity.
func NewBuilder(nodeID string, privKey *ecdsa.PrivateKey) *Builder {
	return &Builder{
		nodeID:  nodeID,
		privKey: privKey,
		now:     time.Now,
	}
}

// NodeID returns the authoring node's identifier.
func (b *Builder) NodeID() string {
	return b.nodeID
}

// eventTypeFor maps a payload type to the engagement event it attests.
func eventTypeFor(t PayloadType) EventType {
	switch t {
	case PayloadMessage:
		return EventMessage
	case PayloadVerification:
		return EventVerify
	}
	return EventHeartbeat
}

// Build produces a signed vertex from a payload and a tip selection. It
// computes the payload hash over the canonicalized payload, the vertex hash
// over the fixed five-field tuple, attaches an engagement proof with a fresh
// random nonce, and signs the vertex hash. The returned vertex's hash is
// reproducible by any verifier from the same five inputs, and its signature
// is verifiable without the private key.
func (b *Builder) Build(payload Payload, tips *TipSelection) (*Vertex, error) {
	if tips == nil {
		return nil, ErrMissingTips
	}

	if !ValidPayloadType(payload.Type) {
		return nil, NewValidationErr(InvalidPayload, "",
			"unknown payload type "+string(payload.Type))
	}

	if payload.Timestamp == 0 {
		payload.Timestamp = b.now().UnixMilli()
	}

	vertex := &Vertex{
		NodeID:    b.nodeID,
		Tip1:      tips.Tip1,
		Tip2:      tips.Tip2,
		Depth:     tips.Depth,
		Payload:   payload,
		CreatedAt: b.now().UnixMilli(),
	}

	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, err
	}
	vertex.PayloadHash = payloadHash

	hash, err := vertex.ComputeHash()
	if err != nil {
		return nil, err
	}
	vertex.Hash = hash

	proof, err := BuildProof(b.nodeID, eventTypeFor(payload.Type), 0, b.privKey)
	if err != nil {
		return nil, err
	}
	vertex.Proof = proof

	if err := vertex.Sign(b.privKey); err != nil {
		return nil, err
	}

	return vertex, nil
}
