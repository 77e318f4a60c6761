package vectordb

import (
	"context"
	"sync"
	"time"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
)

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxEntries    int           // hard ceiling on cached clients
	MaxIdle       time.Duration // idle entries past this are evictable
	SweepInterval time.Duration // how often the background worker sweeps
	CloseGrace    time.Duration // how long Close waits for in-flight work
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxEntries:    64,
		MaxIdle:       5 * time.Minute,
		SweepInterval: time.Minute,
		CloseGrace:    10 * time.Second,
	}
}

type poolEntry struct {
	key       string
	client    Client
	createdAt time.Time
	lastUsed  time.Time
	inFlight  int

	// creation gate: acquirers of a new key wait on ready
	ready chan struct{}
	err   error
}

// Handle is a borrowed reference to a pooled client. Callers must Release
// it exactly once.
type Handle struct {
	Client Client
	pool   *Pool
	entry  *poolEntry
	once   sync.Once
}

// Release returns the handle to the pool.
func (h *Handle) Release() {
	h.once.Do(func() { h.pool.release(h.entry) })
}

// EntryStats is the per-key view exposed by Stats.
type EntryStats struct {
	Key      string        `json:"key"`
	InFlight int           `json:"in_flight"`
	Age      time.Duration `json:"age"`
	IdleFor  time.Duration `json:"idle_for"`
}

// PoolStats summarises pool state for the health surface.
type PoolStats struct {
	Active  int          `json:"active"`
	Idle    int          `json:"idle"`
	Entries []EntryStats `json:"entries"`
}

// Pool caches credentialed clients keyed by (uri, user, db). Client
// construction happens under a per-key gate so concurrent first acquires
// of the same key dial once. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	dial    Dialer
	cfg     PoolConfig
	closed  bool
	now     func() time.Time

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPool builds a pool around dial.
func NewPool(dial Dialer, cfg PoolConfig, logger observability.Logger, metrics observability.MetricsClient) *Pool {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultPoolConfig().MaxEntries
	}
	return &Pool{
		entries: make(map[string]*poolEntry),
		dial:    dial,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.WithPrefix("pool"),
		metrics: metrics,
	}
}

// Acquire returns a handle for the credential set, dialing on first use.
// Dial failures are not cached; the next acquire retries.
func (p *Pool) Acquire(ctx context.Context, creds Credentials) (*Handle, error) {
	key := creds.Key()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, apierrors.New(apierrors.KindConnection, "connection pool is closed")
	}
	if e, ok := p.entries[key]; ok {
		e.inFlight++
		p.mu.Unlock()

		// wait for a concurrent creator to finish
		select {
		case <-e.ready:
		case <-ctx.Done():
			p.release(e)
			return nil, ctx.Err()
		}
		if e.err != nil {
			p.release(e)
			return nil, e.err
		}
		return &Handle{Client: e.client, pool: p, entry: e}, nil
	}

	if len(p.entries) >= p.cfg.MaxEntries {
		if !p.evictOneIdleLocked() {
			p.mu.Unlock()
			p.metrics.IncrementCounter("pool_exhausted_total", 1)
			return nil, apierrors.New(apierrors.KindConnection, "connection pool exhausted")
		}
	}

	e := &poolEntry{
		key:       key,
		createdAt: p.now(),
		lastUsed:  p.now(),
		inFlight:  1,
		ready:     make(chan struct{}),
	}
	p.entries[key] = e
	p.mu.Unlock()

	client, err := p.dial(ctx, creds)

	p.mu.Lock()
	if err != nil {
		e.err = apierrors.Wrap(apierrors.KindConnection, "connect to vector database", err)
		delete(p.entries, key)
		close(e.ready)
		p.mu.Unlock()
		return nil, e.err
	}
	e.client = client
	close(e.ready)
	p.publishGauge()
	p.mu.Unlock()

	p.logger.Info("pool entry created", map[string]interface{}{"key": key})
	return &Handle{Client: client, pool: p, entry: e}, nil
}

func (p *Pool) release(e *poolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.inFlight > 0 {
		e.inFlight--
	}
	e.lastUsed = p.now()
}

// SweepIdle closes entries that are idle past MaxIdle with nothing in
// flight. Returns the number closed.
func (p *Pool) SweepIdle() int {
	p.mu.Lock()
	now := p.now()
	var victims []*poolEntry
	for key, e := range p.entries {
		if e.inFlight == 0 && e.client != nil && now.Sub(e.lastUsed) > p.cfg.MaxIdle {
			delete(p.entries, key)
			victims = append(victims, e)
		}
	}
	p.publishGauge()
	p.mu.Unlock()

	for _, e := range victims {
		if err := e.client.Close(); err != nil {
			p.logger.Warn("close idle client failed", map[string]interface{}{
				"key": e.key, "error": err.Error(),
			})
		}
	}
	if len(victims) > 0 {
		p.logger.Info("swept idle pool entries", map[string]interface{}{"count": len(victims)})
	}
	return len(victims)
}

// Stats reports pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := PoolStats{Entries: make([]EntryStats, 0, len(p.entries))}
	for _, e := range p.entries {
		if e.inFlight > 0 {
			stats.Active++
		} else {
			stats.Idle++
		}
		stats.Entries = append(stats.Entries, EntryStats{
			Key:      e.key,
			InFlight: e.inFlight,
			Age:      now.Sub(e.createdAt),
			IdleFor:  now.Sub(e.lastUsed),
		})
	}
	return stats
}

// Close drains the pool: it waits up to CloseGrace for in-flight handles
// to be released, then force-closes everything. Further acquires fail.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	deadline := p.now().Add(p.cfg.CloseGrace)
	for {
		if p.inFlightCount() == 0 || !p.now().Before(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	for _, e := range entries {
		if e.client != nil {
			_ = e.client.Close()
		}
	}
	p.logger.Info("connection pool closed", map[string]interface{}{"entries": len(entries)})
}

func (p *Pool) inFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, e := range p.entries {
		total += e.inFlight
	}
	return total
}

// evictOneIdleLocked frees one idle slot when the pool is full. Caller
// holds the lock.
func (p *Pool) evictOneIdleLocked() bool {
	var oldest *poolEntry
	for _, e := range p.entries {
		if e.inFlight != 0 || e.client == nil {
			continue
		}
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}
	delete(p.entries, oldest.key)
	// closing outside the lock would be nicer, but eviction is rare and
	// Close on an idle REST client only drops cached transports
	_ = oldest.client.Close()
	return true
}

func (p *Pool) publishGauge() {
	p.metrics.RecordGauge("connection_pool_entries", float64(len(p.entries)), nil)
}
