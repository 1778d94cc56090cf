package peers

import (
	"crypto/ecdsa"

	"github.com/engagemesh/engage/src/common"
	"github.com/engagemesh/engage/src/crypto/keys"
)

// Peer is a participant in the engagement ledger. Its ID is derived from the
// public key, and its Moniker is the human-readable node identifier used in
// vertices and engagement proofs.
type Peer struct {
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewPeer instantiates a new Peer from a public key in hex format and a
// moniker.
func NewPeer(pubKeyHex, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		Moniker:   moniker,
	}

	return peer
}

// ID returns a uint32 ID derived from the peer's public key. It is computed
// lazily and cached.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		pubKeyBytes, err := p.PubKeyBytes()
		if err != nil {
			return 0
		}
		p.id = common.Hash32(pubKeyBytes)
	}
	return p.id
}

// PubKeyBytes returns the byte form of the peer's public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// PubKey returns the parsed ecdsa public key of the peer, or nil when the hex
// form is malformed.
func (p *Peer) PubKey() *ecdsa.PublicKey {
	pubKeyBytes, err := p.PubKeyBytes()
	if err != nil {
		return nil
	}
	return keys.ToPublicKey(pubKeyBytes)
}
