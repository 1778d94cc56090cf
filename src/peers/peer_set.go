package peers

import "sort"

// PeerSet is an immutable set of peers indexed by public key and by moniker.
type PeerSet struct {
	Peers     []*Peer          `json:"peers"`
	ByPubKey  map[string]*Peer `json:"-"`
	ByMoniker map[string]*Peer `json:"-"`
}

// NewPeerSet creates a PeerSet from a list of peers. The list is sorted by
// public key so that two sets built from the same peers are identical.
func NewPeerSet(peers []*Peer) *PeerSet {
	sorted := make([]*Peer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PubKeyHex < sorted[j].PubKeyHex
	})

	byPubKey := make(map[string]*Peer, len(sorted))
	byMoniker := make(map[string]*Peer, len(sorted))
	for _, peer := range sorted {
		byPubKey[peer.PubKeyHex] = peer
		if peer.Moniker != "" {
			byMoniker[peer.Moniker] = peer
		}
	}

	return &PeerSet{
		Peers:     sorted,
		ByPubKey:  byPubKey,
		ByMoniker: byMoniker,
	}
}

// WithNewPeer returns a new PeerSet containing the provided peer.
func (ps *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	if _, ok := ps.ByPubKey[peer.PubKeyHex]; ok {
		return ps
	}
	return NewPeerSet(append(ps.Peers, peer))
}

// Len returns the number of peers in the set.
func (ps *PeerSet) Len() int {
	return len(ps.Peers)
}
