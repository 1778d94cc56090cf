package ledger

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// DefaultSigCacheSize bounds the cache of vertex hashes whose signatures have
// already been verified. Gossip can deliver the same vertex several times;
// ECDSA verification is the expensive step of the intake pipeline.
const DefaultSigCacheSize = 10000

// LedgerConfig carries the engine parameters. Zero values fall back to the
// package defaults.
type LedgerConfig struct {
	Selector        SelectorConfig
	ProofMaxAge     time.Duration
	SweepInterval   time.Duration
	RetentionWindow time.Duration
	CacheSize       int
}

// DefaultLedgerConfig returns the default engine parameters.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Selector:        DefaultSelectorConfig(),
		ProofMaxAge:     DefaultNonceMaxAge,
		SweepInterval:   DefaultSweepInterval,
		RetentionWindow: DefaultRetentionWindow,
		CacheSize:       DefaultSigCacheSize,
	}
}

// Ledger is the engine owning one local vertex set. Inserts, weight
// recomputation, anchoring and pruning are serialized behind a single mutex:
// weight propagation and validation both require a consistent snapshot.
// Signature verification and hashing are stateless and safe to run outside
// the lock, but the intake pipeline keeps them inline for simplicity; the
// verified-signature cache makes repeat deliveries cheap.
type Ledger struct {
	sync.Mutex

	store    Store
	replay   *ReplayGuard
	conf     LedgerConfig
	sigCache *lru.Cache //vertex hash => struct{}, signature already verified

	//payload hash => "tip1|tip2", for conflict detection on insert
	payloadPairs map[string]string

	logger *logrus.Entry
}

// NewLedger creates an engine over the given store. The store may already
// contain vertices (bootstrap from disk); conflict indexes and weights are
// rebuilt from it.
func NewLedger(store Store, conf LedgerConfig, logger *logrus.Entry) (*Ledger, error) {
	if logger == nil {
		log := logrus.New()
		logger = log.WithField("prefix", "ledger")
	}

	if conf.CacheSize == 0 {
		conf.CacheSize = DefaultSigCacheSize
	}
	sigCache, err := lru.New(conf.CacheSize)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		store:        store,
		replay:       NewReplayGuard(conf.ProofMaxAge, logger),
		conf:         conf,
		sigCache:     sigCache,
		payloadPairs: make(map[string]string),
		logger:       logger,
	}

	vertices := store.Vertices()
	if len(vertices) > 0 {
		if err := Validate(vertices); err != nil {
			return nil, err
		}
		for _, v := range vertices {
			l.payloadPairs[v.PayloadHash] = parentPair(v)
		}
		PropagateWeights(vertices)
	}

	l.replay.Start(conf.SweepInterval)

	return l, nil
}

// Stop terminates the engine's background tasks and closes the store.
func (l *Ledger) Stop() error {
	l.replay.Stop()
	return l.store.Close()
}

// Store exposes the underlying store for read-only collaborators.
func (l *Ledger) Store() Store {
	return l.store
}

func parentPair(v *Vertex) string {
	return v.Tip1 + "|" + v.Tip2
}

// SelectTips picks two parent references for a new vertex with two
// independent time-seeded random walks.
func (l *Ledger) SelectTips() *TipSelection {
	l.Lock()
	defer l.Unlock()
	return l.selectTips()
}

// SelectTipsSeeded is the deterministic variant used by tests and by replays.
func (l *Ledger) SelectTipsSeeded(seed int64) *TipSelection {
	l.Lock()
	defer l.Unlock()
	return SelectTipsSeeded(l.store.Vertices(), l.conf.Selector, seed)
}

func (l *Ledger) selectTips() *TipSelection {
	seed := time.Now().UnixNano()
	rng1 := NewMathRNG(seed)
	rng2 := NewMathRNG(seed ^ 0x5DEECE66D)
	return SelectTips(l.store.Vertices(), l.conf.Selector, rng1, rng2)
}

// CreateVertex runs the authoring path: select tips, build a signed vertex,
// insert it into the local set. The returned vertex is ready to be persisted
// and broadcast by the caller.
func (l *Ledger) CreateVertex(builder *Builder, payload Payload) (*Vertex, error) {
	l.Lock()
	defer l.Unlock()

	tips := l.selectTips()

	vertex, err := builder.Build(payload, tips)
	if err != nil {
		return nil, err
	}

	if err := l.insert(vertex); err != nil {
		return nil, err
	}

	return vertex, nil
}

// InsertVertex runs the full intake pipeline on a vertex received from a
// peer: hash recomputation, signature verification, replay guard, structural
// validation against the accepted set, then weight refresh. Failures are
// rejection values from the error taxonomy; the caller drops and logs the
// vertex.
func (l *Ledger) InsertVertex(vertex *Vertex) error {
	l.Lock()
	defer l.Unlock()
	return l.insert(vertex)
}

func (l *Ledger) insert(v *Vertex) error {
	if v == nil || v.Proof == nil || v.Proof.Data == nil {
		return NewValidationErr(InvalidSignature, "", "vertex without proof")
	}

	if !ValidPayloadType(v.Payload.Type) {
		return NewValidationErr(InvalidPayload, v.Hash,
			"unknown payload type "+string(v.Payload.Type))
	}

	// 1. tamper check: recompute both hashes
	payloadHash, err := v.Payload.Hash()
	if err != nil || payloadHash != v.PayloadHash {
		return NewValidationErr(HashMismatch, v.Hash, "payload hash does not recompute")
	}
	hash, err := v.ComputeHash()
	if err != nil || hash != v.Hash {
		return NewValidationErr(HashMismatch, v.Hash, "vertex hash does not recompute")
	}

	// repeat delivery of an accepted vertex is a no-op
	if l.store.HasVertex(v.Hash) {
		return nil
	}

	// 2. cryptographic attestation
	if _, verified := l.sigCache.Get(v.Hash); !verified {
		if !v.Verify() {
			return NewValidationErr(InvalidSignature, v.Hash, "vertex or proof signature invalid")
		}
		l.sigCache.Add(v.Hash, struct{}{})
	}

	if v.Proof.Data.NodeID != v.NodeID {
		return NewValidationErr(InvalidSignature, v.Hash, "proof author does not match vertex author")
	}

	// 3. attestation freshness and replay protection
	if err := v.Proof.CheckFreshness(time.Now(), l.conf.ProofMaxAge); err != nil {
		return err
	}
	if l.replay.HasSeenNonce(v.Proof.Nonce, v.Proof.Timestamp) {
		return NewValidationErr(ReplayDetected, v.Hash, "proof nonce already recorded")
	}

	// 4. structural validation against the accepted set
	if err := l.checkStructure(v); err != nil {
		return err
	}

	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().UnixMilli()
	}

	if err := l.store.SetVertex(v); err != nil {
		return err
	}
	l.payloadPairs[v.PayloadHash] = parentPair(v)

	// 5. refresh cumulative weights over the new set
	l.refreshWeights()

	l.logger.WithFields(logrus.Fields{
		"hash":  v.Hash,
		"node":  v.NodeID,
		"depth": v.Depth,
	}).Debug("Inserted vertex")

	return nil
}

// checkStructure validates a single new vertex against the current accepted
// set. Parents must pre-exist, so the new vertex cannot close a cycle; the
// remaining invariants are checked directly.
func (l *Ledger) checkStructure(v *Vertex) error {
	for _, ref := range []string{v.Tip1, v.Tip2} {
		if IsGenesisRef(ref) {
			continue
		}
		parent, err := l.store.GetVertex(ref)
		if err != nil {
			return NewValidationErr(MissingReference, v.Hash,
				fmt.Sprintf("unknown parent %s", ref))
		}
		if v.Depth <= parent.Depth {
			return NewValidationErr(DepthViolation, v.Hash,
				fmt.Sprintf("depth %d does not exceed parent depth %d", v.Depth, parent.Depth))
		}
		if v.Anchored && !parent.Anchored {
			return NewValidationErr(AnchoringViolation, v.Hash,
				fmt.Sprintf("anchored vertex has unanchored parent %s", ref))
		}
	}

	if v.Anchored && v.AnchorTimestamp != 0 && v.CreatedAt != 0 && v.AnchorTimestamp < v.CreatedAt {
		return NewValidationErr(AnchoringViolation, v.Hash, "anchor timestamp precedes creation")
	}

	if pair, ok := l.payloadPairs[v.PayloadHash]; ok && pair != parentPair(v) {
		return NewValidationErr(ConflictingApproval, v.Hash,
			fmt.Sprintf("payload %s already approved with different parents", v.PayloadHash))
	}

	return nil
}

func (l *Ledger) refreshWeights() {
	vertices := l.store.Vertices()
	PropagateWeights(vertices)
	for _, v := range vertices {
		if err := l.store.SetVertex(v); err != nil {
			l.logger.WithField("hash", v.Hash).WithError(err).Warn("Persisting weight update")
		}
	}
}

// Anchor promotes a vertex to checkpointed status. The anchoring authority is
// external; the engine enforces the anchoring invariants.
func (l *Ledger) Anchor(hash string, at int64) error {
	l.Lock()
	defer l.Unlock()

	v, err := l.store.GetVertex(hash)
	if err != nil {
		return NewValidationErr(MissingReference, hash, "cannot anchor unknown vertex")
	}

	if at < v.CreatedAt {
		return NewValidationErr(AnchoringViolation, hash, "anchor timestamp precedes creation")
	}

	for _, ref := range []string{v.Tip1, v.Tip2} {
		if IsGenesisRef(ref) {
			continue
		}
		parent, err := l.store.GetVertex(ref)
		if err != nil {
			return NewValidationErr(MissingReference, hash,
				fmt.Sprintf("unknown parent %s", ref))
		}
		if !parent.Anchored {
			return NewValidationErr(AnchoringViolation, hash,
				fmt.Sprintf("parent %s is not anchored", ref))
		}
	}

	v.Anchored = true
	v.AnchorTimestamp = at

	return l.store.SetVertex(v)
}

// Prune removes unanchored vertices older than the retention window and
// returns the number of removals. Weights are refreshed when anything was
// removed.
func (l *Ledger) Prune() (int, error) {
	l.Lock()
	defer l.Unlock()

	vertices := l.store.Vertices()
	surviving := PruneOldVertices(vertices, l.conf.RetentionWindow, time.Now())

	if len(surviving) == len(vertices) {
		return 0, nil
	}

	keep := make(map[string]bool, len(surviving))
	for _, v := range surviving {
		keep[v.Hash] = true
	}

	removed := 0
	for _, v := range vertices {
		if keep[v.Hash] {
			continue
		}
		if err := l.store.RemoveVertex(v.Hash); err != nil {
			return removed, err
		}
		removed++
	}

	// rebuild the conflict index from the survivors; a removed vertex may
	// share its payload hash with one that stays
	l.payloadPairs = make(map[string]string, len(surviving))
	for _, v := range surviving {
		l.payloadPairs[v.PayloadHash] = parentPair(v)
	}

	l.refreshWeights()

	l.logger.WithField("removed", removed).Debug("Pruned vertices")

	return removed, nil
}

// ValidateAll re-checks every invariant over the whole accepted set.
func (l *Ledger) ValidateAll() error {
	l.Lock()
	defer l.Unlock()
	return Validate(l.store.Vertices())
}

// Tips returns the hashes of the current frontier: vertices with no known
// approvers.
func (l *Ledger) Tips() []string {
	l.Lock()
	defer l.Unlock()

	vertices := l.store.Vertices()
	approved := make(map[string]bool, len(vertices))
	for _, v := range vertices {
		approved[v.Tip1] = true
		approved[v.Tip2] = true
	}

	tips := []string{}
	for _, v := range vertices {
		if !approved[v.Hash] {
			tips = append(tips, v.Hash)
		}
	}

	return tips
}

// Stats returns a snapshot of engine counters for the HTTP service.
func (l *Ledger) Stats() map[string]string {
	l.Lock()
	defer l.Unlock()

	vertices := l.store.Vertices()

	anchored := 0
	maxDepth := 0
	for _, v := range vertices {
		if v.Anchored {
			anchored++
		}
		if v.Depth > maxDepth {
			maxDepth = v.Depth
		}
	}

	return map[string]string{
		"num_vertices":   strconv.Itoa(len(vertices)),
		"num_anchored":   strconv.Itoa(anchored),
		"max_depth":      strconv.Itoa(maxDepth),
		"tracked_nonces": strconv.Itoa(l.replay.Len()),
	}
}
