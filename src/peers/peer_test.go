package peers

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/engagemesh/engage/src/crypto/keys"
)

func newTestPeer(t *testing.T, moniker string) *Peer {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return NewPeer(keys.PublicKeyHex(&key.PublicKey), moniker)
}

func TestPeerID(t *testing.T) {
	peer := newTestPeer(t, "alice")

	if peer.ID() == 0 {
		t.Fatal("peer ID should not be 0")
	}

	if peer.ID() != peer.ID() {
		t.Fatal("peer ID should be stable")
	}

	if peer.PubKey() == nil {
		t.Fatal("peer public key should parse")
	}
}

func TestPeerSetDeterministicOrder(t *testing.T) {
	a := newTestPeer(t, "alice")
	b := newTestPeer(t, "bob")
	c := newTestPeer(t, "carol")

	ps1 := NewPeerSet([]*Peer{a, b, c})
	ps2 := NewPeerSet([]*Peer{c, a, b})

	if !reflect.DeepEqual(ps1.Peers, ps2.Peers) {
		t.Fatal("peer sets built from the same peers should be identical")
	}

	if ps1.ByMoniker["bob"] != b {
		t.Fatal("moniker index broken")
	}
}

func TestJSONPeers(t *testing.T) {
	dir, err := ioutil.TempDir("", "peers")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeers(dir)

	// Try a read, should get nothing
	if _, err := store.PeerSet(); err == nil {
		t.Fatal("should fail reading peers from empty directory")
	}

	peerSet := NewPeerSet([]*Peer{
		newTestPeer(t, "alice"),
		newTestPeer(t, "bob"),
		newTestPeer(t, "carol"),
	})

	if err := store.SetPeerSet(peerSet); err != nil {
		t.Fatal(err)
	}

	readPeerSet, err := store.PeerSet()
	if err != nil {
		t.Fatal(err)
	}

	if len(readPeerSet.Peers) != peerSet.Len() {
		t.Fatalf("expected %d peers, got %d", peerSet.Len(), len(readPeerSet.Peers))
	}

	for i, p := range readPeerSet.Peers {
		if p.PubKeyHex != peerSet.Peers[i].PubKeyHex {
			t.Fatalf("peer %d mismatch: %s != %s", i, p.PubKeyHex, peerSet.Peers[i].PubKeyHex)
		}
	}
}
