package ledger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultNonceMaxAge is the sliding window during which a nonce is
	// tracked and its timestamp accepted.
	DefaultNonceMaxAge = 5 * time.Minute

	// DefaultSweepInterval is the period of the background cleanup task.
	DefaultSweepInterval = time.Minute

	// maxFutureSkew bounds how far in the future an attestation timestamp may
	// be; beyond this the replay window cannot cover it.
	maxFutureSkew = 60 * time.Second
)

// ReplayGuard tracks (nonce, timestamp) pairs for a sliding window and
// rejects reused nonces and out-of-window timestamps. It is the engine's only
// long-lived mutable state outside the store: created once per process,
// appended to on every verified proof, and swept by a periodic task.
type ReplayGuard struct {
	sync.Mutex
	seen   map[string]int64 //nonce => timestamp (ms)
	maxAge time.Duration

	now func() time.Time

	sweepTicker *time.Ticker
	shutdownCh  chan struct{}
	shutdownWG  sync.WaitGroup

	logger *logrus.Entry
}

// NewReplayGuard creates a ReplayGuard with the given window. A maxAge of 0
// falls back to the default.
func NewReplayGuard(maxAge time.Duration, logger *logrus.Entry) *ReplayGuard {
	if maxAge == 0 {
		maxAge = DefaultNonceMaxAge
	}
	if logger == nil {
		log := logrus.New()
		logger = log.WithField("prefix", "replay")
	}
	return &ReplayGuard{
		seen:       make(map[string]int64),
		maxAge:     maxAge,
		now:        time.Now,
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

// HasSeenNonce reports "seen" (true) when the nonce was already recorded, or
// when the timestamp is older than now-maxAge or more than 60 seconds in the
// future. A fresh nonce with an in-window timestamp is recorded and accepted.
func (g *ReplayGuard) HasSeenNonce(nonce string, timestamp int64) bool {
	g.Lock()
	defer g.Unlock()

	if _, ok := g.seen[nonce]; ok {
		return true
	}

	// Record the nonce regardless of freshness; every rejection outcome is
	// equivalent for the caller and a recorded nonce can never be replayed.
	g.seen[nonce] = timestamp

	now := g.now()
	ts := time.UnixMilli(timestamp)

	if ts.Before(now.Add(-g.maxAge)) {
		return true
	}

	if ts.After(now.Add(maxFutureSkew)) {
		return true
	}

	return false
}

// Sweep evicts entries older than maxAge and returns the number of evictions.
func (g *ReplayGuard) Sweep() int {
	g.Lock()
	defer g.Unlock()

	cutoff := g.now().Add(-g.maxAge).UnixMilli()

	evicted := 0
	for nonce, ts := range g.seen {
		if ts < cutoff {
			delete(g.seen, nonce)
			evicted++
		}
	}

	return evicted
}

// Len returns the number of tracked nonces.
func (g *ReplayGuard) Len() int {
	g.Lock()
	defer g.Unlock()
	return len(g.seen)
}

// Start launches the background sweeper. It is idempotent per guard; call
// Stop to terminate it.
func (g *ReplayGuard) Start(interval time.Duration) {
	if g.sweepTicker != nil {
		return
	}
	if interval == 0 {
		interval = DefaultSweepInterval
	}

	g.sweepTicker = time.NewTicker(interval)
	g.shutdownCh = make(chan struct{})
	g.shutdownWG.Add(1)

	go func() {
		defer g.shutdownWG.Done()
		for {
			select {
			case <-g.sweepTicker.C:
				if n := g.Sweep(); n > 0 {
					g.logger.WithField("evicted", n).Debug("Swept replay guard")
				}
			case <-g.shutdownCh:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper and waits for it to exit.
func (g *ReplayGuard) Stop() {
	if g.sweepTicker == nil {
		return
	}
	g.sweepTicker.Stop()
	close(g.shutdownCh)
	g.shutdownWG.Wait()
	g.sweepTicker = nil
}
