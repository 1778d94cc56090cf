package node

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/engagemesh/engage/src/config"
	"github.com/engagemesh/engage/src/crypto/keys"
	"github.com/engagemesh/engage/src/ledger"
	"github.com/engagemesh/engage/src/net"
	"github.com/engagemesh/engage/src/peers"
)

// Node owns one ledger instance. It creates local vertices on a heartbeat
// timer, accepts envelopes delivered by the external transport through
// Submit, and emits envelopes to broadcast through Publish. All ledger
// mutations funnel through the engine, which serializes them.
type Node struct {
	conf    *config.Config
	core    *ledger.Ledger
	builder *ledger.Builder
	peerSet *peers.PeerSet

	submitCh     chan *net.Envelope
	publishCh    chan *net.Envelope
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	logger *logrus.Entry
}

// NewNode instantiates a node from its configuration, private key and peer
// set. The store backend is chosen by conf.Store.
func NewNode(conf *config.Config, key *ecdsa.PrivateKey, peerSet *peers.PeerSet) (*Node, error) {
	logger := conf.Logger()

	var store ledger.Store
	var err error
	if conf.Store {
		store, err = ledger.LoadOrCreateBadgerStore(conf.DatabaseDir)
		if err != nil {
			return nil, fmt.Errorf("opening badger store: %v", err)
		}
	} else {
		store = ledger.NewInmemStore()
	}

	core, err := ledger.NewLedger(store, conf.LedgerConfig(), logger)
	if err != nil {
		return nil, err
	}

	moniker := conf.Moniker
	if moniker == "" {
		moniker = keys.PublicKeyHex(&key.PublicKey)
	}

	return &Node{
		conf:       conf,
		core:       core,
		builder:    ledger.NewBuilder(moniker, key),
		peerSet:    peerSet,
		submitCh:   make(chan *net.Envelope, 64),
		publishCh:  make(chan *net.Envelope, 64),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}, nil
}

// Ledger exposes the engine for read-only collaborators like the HTTP
// service.
func (n *Node) Ledger() *ledger.Ledger {
	return n.core
}

// Moniker returns the node identifier used in authored vertices.
func (n *Node) Moniker() string {
	return n.builder.NodeID()
}

// Submit hands an envelope received from the transport to the node. It never
// blocks the transport for long; a full intake queue drops the envelope,
// which gossip redundancy tolerates.
func (n *Node) Submit(env *net.Envelope) {
	select {
	case n.submitCh <- env:
	default:
		n.logger.Warn("Intake queue full, dropping envelope")
	}
}

// Publish returns the channel of envelopes the transport must broadcast.
func (n *Node) Publish() <-chan *net.Envelope {
	return n.publishCh
}

// Run is the node's control loop. It blocks until Shutdown is called.
func (n *Node) Run() {
	heartbeat := time.NewTicker(n.conf.HeartbeatInterval)
	defer heartbeat.Stop()

	prune := time.NewTicker(n.conf.PruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-heartbeat.C:
			n.emitHeartbeat()
		case <-prune.C:
			if _, err := n.core.Prune(); err != nil {
				n.logger.WithError(err).Error("Pruning")
			}
		case env := <-n.submitCh:
			n.handleEnvelope(env)
		case <-n.shutdownCh:
			return
		}
	}
}

// RunAsync runs the control loop in a background goroutine.
func (n *Node) RunAsync() {
	go n.Run()
}

// Shutdown terminates the control loop and the engine. Calling it more than
// once is a no-op.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")
		close(n.shutdownCh)
		if err := n.core.Stop(); err != nil {
			n.logger.WithError(err).Error("Stopping ledger")
		}
	})
}

// CreateVertex authors a vertex carrying the given payload and queues it for
// broadcast.
func (n *Node) CreateVertex(payload ledger.Payload) (*ledger.Vertex, error) {
	vertex, err := n.core.CreateVertex(n.builder, payload)
	if err != nil {
		return nil, err
	}

	n.broadcast(&net.Envelope{
		Type:      net.EnvelopeRelay,
		Vertex:    vertex,
		NodeID:    n.Moniker(),
		Timestamp: time.Now().UnixMilli(),
	})

	return vertex, nil
}

func (n *Node) emitHeartbeat() {
	payload := ledger.Payload{
		Type: ledger.PayloadEngagement,
		Data: map[string]interface{}{"action": "heartbeat"},
	}

	vertex, err := n.core.CreateVertex(n.builder, payload)
	if err != nil {
		n.logger.WithError(err).Error("Creating heartbeat vertex")
		return
	}

	n.broadcast(&net.Envelope{
		Type:      net.EnvelopeHeartbeat,
		Vertex:    vertex,
		NodeID:    n.Moniker(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (n *Node) broadcast(env *net.Envelope) {
	select {
	case n.publishCh <- env:
	default:
		n.logger.Warn("Publish queue full, dropping envelope")
	}
}

// handleEnvelope processes one envelope from the transport. Rejections are
// non-fatal: the vertex is dropped and logged, and the node keeps running.
func (n *Node) handleEnvelope(env *net.Envelope) {
	if env == nil || !net.ValidEnvelopeType(env.Type) {
		n.logger.Warn("Dropping envelope with unknown type")
		return
	}

	if env.Vertex == nil {
		// bare heartbeat announcement, nothing to insert
		return
	}

	if env.Vertex.Proof == nil {
		n.logger.Warn("Dropping vertex without engagement proof")
		return
	}

	if n.peerSet != nil && n.peerSet.Len() > 0 {
		if _, known := n.peerSet.ByPubKey[env.Vertex.Proof.PublicKey]; !known {
			n.logger.WithFields(logrus.Fields{
				"node": env.Vertex.NodeID,
			}).Warn("Dropping vertex from unknown peer")
			return
		}
	}

	if err := n.core.InsertVertex(env.Vertex); err != nil {
		n.logger.WithFields(logrus.Fields{
			"hash":  env.Vertex.Hash,
			"node":  env.Vertex.NodeID,
			"error": err,
		}).Warn("Rejected vertex")
		return
	}
}

// GetStats merges engine counters with node-level information for the HTTP
// service.
func (n *Node) GetStats() map[string]string {
	stats := n.core.Stats()
	stats["moniker"] = n.Moniker()
	if n.peerSet != nil {
		stats["num_peers"] = fmt.Sprintf("%d", n.peerSet.Len())
	}
	return stats
}

// GetPeers returns the known peer set.
func (n *Node) GetPeers() []*peers.Peer {
	if n.peerSet == nil {
		return nil
	}
	return n.peerSet.Peers
}
