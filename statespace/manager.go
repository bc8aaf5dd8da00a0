package statespace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/decode"
	"github.com/poolmirror/poolmirror-go/provider"
	"github.com/poolmirror/poolmirror-go/registry"
	"github.com/poolmirror/poolmirror-go/snapshot"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// State is the manager's lifecycle phase. Transitions happen only on the
// writer goroutine; reads are safe from anywhere.
type State uint32

const (
	StateIdle State = iota + 1
	StateSyncing
	StateReorgRecovering
	StateStalled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateReorgRecovering:
		return "reorg_recovering"
	case StateStalled:
		return "stalled"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Config holds the dependencies and settings for a Manager.
type Config struct {
	SystemName    string
	Provider      provider.Provider
	Tracked       map[common.Address]amm.Variant
	Registry      *registry.Registry
	PrometheusReg prometheus.Registerer
	Logger        Logger

	// ReorgDepth bounds how many committed blocks can be rolled back. It is
	// the snapshot ring's capacity.
	ReorgDepth int

	// SeedBatchSize caps the calls packed into one seeding RPC batch.
	SeedBatchSize int

	// LogRangeBatchSize caps the span of one eth_getLogs query during
	// catch-up.
	LogRangeBatchSize uint64

	// HeaderBuffer sizes the new-heads channel.
	HeaderBuffer int

	// ResubscribeDelay is the pause before re-establishing a dropped head
	// subscription.
	ResubscribeDelay time.Duration

	// PoolFilter, when set, vets pools at seeding time. Rejected pools are
	// not tracked from the seed; a later on-chain event still recreates
	// them as skeletons.
	PoolFilter func(amm.Pool) bool

	Retry Policy
}

func (c *Config) validate() error {
	if c.SystemName == "" {
		return errors.New("system name is required")
	}
	if c.Provider == nil {
		return errors.New("provider is required")
	}
	if len(c.Tracked) == 0 {
		return errors.New("at least one tracked pool is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.ReorgDepth == 0 {
		c.ReorgDepth = 64
	}
	if c.ReorgDepth < 0 {
		return errors.New("reorg depth must be positive")
	}
	if c.SeedBatchSize <= 0 {
		c.SeedBatchSize = 100
	}
	if c.LogRangeBatchSize == 0 {
		c.LogRangeBatchSize = 2000
	}
	if c.HeaderBuffer <= 0 {
		c.HeaderBuffer = 64
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = time.Second
	}
	if c.Registry == nil {
		c.Registry = registry.New()
	}
	if c.PrometheusReg == nil {
		c.PrometheusReg = prometheus.NewRegistry()
	}
	if c.Retry == (Policy{}) {
		c.Retry = DefaultPolicy
	}
	return nil
}

// Manager mirrors the tracked pools against the chain: it ingests block
// events, applies them to the registry with per-block atomicity, retains
// rollback snapshots, and recovers from reorganizations within the retained
// depth. All mutation runs on the goroutine driving Run/ProcessHeader.
type Manager struct {
	cfg       Config
	provider  provider.Provider
	registry  *registry.Registry
	ring      *snapshot.Ring
	tracked   map[common.Address]amm.Variant
	addresses []common.Address
	topics    []common.Hash
	logger    Logger
	metrics   *Metrics

	state atomic.Uint32

	// fatalStall marks a stall that only a full resync can clear. Provider
	// stalls resume on the next head.
	fatalStall bool

	// Identity of the last committed block; the anchor for parent checks.
	lastNumber uint64
	lastHash   common.Hash
}

// New builds a Manager from the config.
func New(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ring, err := snapshot.NewRing(cfg.ReorgDepth)
	if err != nil {
		return nil, err
	}

	addresses := make([]common.Address, 0, len(cfg.Tracked))
	for addr := range cfg.Tracked {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].Cmp(addresses[j]) < 0
	})

	m := &Manager{
		cfg:       cfg,
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		ring:      ring,
		tracked:   cfg.Tracked,
		addresses: addresses,
		topics:    decode.Topics(),
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.PrometheusReg, cfg.SystemName),
	}
	m.setState(StateIdle)
	return m, nil
}

// Registry exposes the pool registry for readers.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// State returns the manager's current lifecycle phase.
func (m *Manager) State() State { return State(m.state.Load()) }

// LastBlock returns the identity of the most recently committed block.
func (m *Manager) LastBlock() (uint64, common.Hash) { return m.lastNumber, m.lastHash }

func (m *Manager) setState(s State) {
	m.state.Store(uint32(s))
	m.metrics.ManagerState.Set(float64(s))
}

// Run subscribes to new heads and processes them until the context ends.
// Dropped subscriptions are re-established after a delay. A fatal stall (an
// unrecoverable reorg or corrupted local state) ends the loop with the
// error that caused it; the caller decides whether to Resync and run again.
func (m *Manager) Run(ctx context.Context) error {
	for {
		headers := make(chan *types.Header, m.cfg.HeaderBuffer)
		sub, err := m.provider.SubscribeNewHeads(ctx, headers)
		if err != nil {
			m.logger.Warn("head subscription failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.ResubscribeDelay):
				continue
			}
		}

		err = m.consume(ctx, sub, headers)
		sub.Unsubscribe()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case m.fatalStall:
			return err
		case err != nil:
			m.logger.Warn("head stream interrupted, resubscribing", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.ResubscribeDelay):
			}
		}
	}
}

func (m *Manager) consume(ctx context.Context, sub ethereum.Subscription, headers <-chan *types.Header) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case header := <-headers:
			if header == nil {
				continue
			}
			if err := m.ProcessHeader(ctx, header); err != nil {
				if m.fatalStall {
					return err
				}
				// Transient provider failures: the gap replay on the next
				// head covers whatever this block would have contributed.
				m.logger.Error("block processing failed",
					"block", header.Number.Uint64(), "err", err)
			}
		}
	}
}

// ProcessHeader advances the mirror to the given head: applies it directly
// when it extends the last committed block, fills gaps by replaying the
// canonical chain, and unwinds into reorg recovery when the parent hash does
// not line up.
//
// Exhausted provider retries stall the manager; the next head resumes it.
// An exceeded reorg depth stalls it fatally, and only Resync clears that.
func (m *Manager) ProcessHeader(ctx context.Context, header *types.Header) error {
	if m.State() == StateStalled {
		if m.fatalStall {
			return ErrStalled
		}
		m.setState(StateIdle)
	}

	err := m.processHeader(ctx, header)

	switch {
	case errors.Is(err, amm.ErrInvariantViolation):
		// Local state no longer mirrors the chain. Only a reseed helps.
		m.fatalStall = true
		m.setState(StateStalled)
		m.metrics.Stalls.Inc()
	default:
		var pErr *ProviderError
		if errors.As(err, &pErr) && ctx.Err() == nil {
			m.registry.Discard()
			m.setState(StateStalled)
			m.metrics.Stalls.Inc()
		}
	}
	return err
}

func (m *Manager) processHeader(ctx context.Context, header *types.Header) error {
	number := header.Number.Uint64()

	// First block after a cold start or a reseed anchors the chain.
	if m.lastHash == (common.Hash{}) {
		return m.applyBlock(ctx, number, header.Hash(), header.ParentHash)
	}

	if header.Hash() == m.lastHash {
		return nil
	}

	// A stale re-delivery of a block already in the retained history is not
	// a reorg.
	if number <= m.lastNumber {
		if s, ok := m.ring.Find(number); ok && s.BlockHash == header.Hash() {
			return nil
		}
	}

	// A head at or below the committed height, or one whose parent is not
	// our last block, means our suffix is no longer canonical.
	if number <= m.lastNumber || (number == m.lastNumber+1 && header.ParentHash != m.lastHash) {
		if err := m.recoverReorg(ctx, header); err != nil {
			return err
		}
		return m.applyBlock(ctx, number, header.Hash(), header.ParentHash)
	}

	// Gap: replay the canonical blocks we missed, oldest first.
	if number > m.lastNumber+1 {
		if err := m.backfill(ctx, m.lastNumber+1, number-1); err != nil {
			return err
		}
	}

	if header.ParentHash != m.lastHash {
		if err := m.recoverReorg(ctx, header); err != nil {
			return err
		}
	}
	return m.applyBlock(ctx, number, header.Hash(), header.ParentHash)
}

// backfill replays the inclusive canonical block range oldest-first, pulling
// logs in batched queries rather than per block.
func (m *Manager) backfill(ctx context.Context, from, to uint64) error {
	ranges, err := SplitRange(from, to, m.cfg.LogRangeBatchSize)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		logs, err := m.filterLogs(ctx, r.From, r.To)
		if err != nil {
			return err
		}
		byBlock := make(map[uint64][]types.Log, r.To-r.From+1)
		for _, log := range logs {
			byBlock[log.BlockNumber] = append(byBlock[log.BlockNumber], log)
		}
		for n := r.From; n <= r.To; n++ {
			hdr, err := m.headerByNumber(ctx, n)
			if err != nil {
				return err
			}
			if hdr.ParentHash != m.lastHash {
				if err := m.recoverReorg(ctx, hdr); err != nil {
					return err
				}
			}
			if err := m.applyLogs(hdr.Number.Uint64(), hdr.Hash(), hdr.ParentHash, byBlock[n]); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyBlock fetches one block's logs and applies them as a unit.
func (m *Manager) applyBlock(ctx context.Context, number uint64, hash, parentHash common.Hash) error {
	logs, err := m.filterLogs(ctx, number, number)
	if err != nil {
		return err
	}
	return m.applyLogs(number, hash, parentHash, logs)
}

// applyLogs decodes and applies every tracked-pool log in one block, then
// commits and snapshots it as a unit.
func (m *Manager) applyLogs(number uint64, hash, parentHash common.Hash, logs []types.Log) error {
	m.setState(StateSyncing)
	defer m.setState(StateIdle)
	started := time.Now()

	// eth_getLogs returns logs in order, but ordering is an invariant here,
	// not an assumption.
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })

	applied := make([]snapshot.Applied, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}
		variant, ok := m.tracked[log.Address]
		if !ok {
			continue
		}

		d, err := decode.Decode(log, variant)
		if err != nil {
			// A malformed log from a tracked pool is recorded and skipped;
			// it carries no applicable state change.
			m.metrics.DecodeFailures.Inc()
			m.logger.Warn("undecodable log from tracked pool", "err", err)
			continue
		}
		if d == nil {
			continue
		}

		pre, err := m.registry.ApplyDelta(d)
		if err != nil {
			if errors.Is(err, amm.ErrInvariantViolation) {
				// Local state is corrupt; nothing in this block is safe.
				m.registry.Discard()
				m.logger.Error("invariant violation, block discarded",
					"block", number, "pool", d.PoolAddress.Hex(), "err", err)
				return err
			}
			m.metrics.DecodeFailures.Inc()
			m.logger.Warn("delta rejected", "block", number,
				"pool", d.PoolAddress.Hex(), "err", err)
			continue
		}
		applied = append(applied, snapshot.Applied{Delta: d, Pre: pre})
	}

	if len(applied) > 0 {
		if err := m.registry.Commit(); err != nil {
			return err
		}
	} else {
		m.registry.Discard()
	}

	m.ring.Push(snapshot.Snapshot{
		BlockNumber: number,
		BlockHash:   hash,
		ParentHash:  parentHash,
		Deltas:      applied,
	})
	m.lastNumber = number
	m.lastHash = hash

	m.metrics.BlocksProcessed.Inc()
	m.metrics.DeltasApplied.Add(float64(len(applied)))
	m.metrics.LastProcessedBlock.Set(float64(number))
	m.metrics.PoolsTracked.Set(float64(m.registry.Len()))
	m.metrics.BlockProcessingDur.Observe(time.Since(started).Seconds())

	m.logger.Debug("block committed", "block", number, "deltas", len(applied))
	return nil
}

// recoverReorg unwinds committed blocks newest-first until the retained
// history reconnects with the chain the new header belongs to. Exhausting
// the ring stalls the manager.
func (m *Manager) recoverReorg(ctx context.Context, header *types.Header) error {
	m.setState(StateReorgRecovering)
	number := header.Number.Uint64()
	m.logger.Info("reorg detected", "head", number, "committed", m.lastNumber)

	rolledBack := 0
	for {
		newest, ok := m.ring.Newest()
		if !ok {
			m.fatalStall = true
			m.setState(StateStalled)
			m.metrics.Stalls.Inc()
			return fmt.Errorf("%w: rolled back %d blocks without finding a common ancestor", ErrReorgDepthExceeded, rolledBack)
		}

		if newest.BlockNumber < number {
			if newest.BlockNumber == number-1 && newest.BlockHash == header.ParentHash {
				break
			}
			canonical, err := m.headerByNumber(ctx, newest.BlockNumber)
			if err != nil {
				m.setState(StateIdle)
				return err
			}
			if canonical.Hash() == newest.BlockHash {
				break
			}
		}

		if err := m.rollbackNewest(); err != nil {
			m.fatalStall = true
			m.setState(StateStalled)
			m.metrics.Stalls.Inc()
			return err
		}
		rolledBack++

		// The anchor tracks the ring after every rollback. Recovery can be
		// cut short by a provider failure, and a stale anchor would let a
		// head extending the rolled-back chain commit on top of the rewound
		// registry.
		if prev, ok := m.ring.Newest(); ok {
			m.lastNumber = prev.BlockNumber
			m.lastHash = prev.BlockHash
		}
	}

	ancestor, _ := m.ring.Newest()
	m.lastNumber = ancestor.BlockNumber
	m.lastHash = ancestor.BlockHash
	m.metrics.ReorgsRecovered.Inc()
	m.metrics.BlocksRolledBack.Add(float64(rolledBack))
	m.logger.Info("reorg unwound", "ancestor", ancestor.BlockNumber, "rolled_back", rolledBack)

	// Replay any canonical blocks between the ancestor and the new head.
	if number > ancestor.BlockNumber+1 {
		return m.backfill(ctx, ancestor.BlockNumber+1, number-1)
	}
	return nil
}

// rollbackNewest inverts and commits the most recent snapshot.
func (m *Manager) rollbackNewest() error {
	s, ok := m.ring.PopNewest()
	if !ok {
		return fmt.Errorf("%w: snapshot ring empty", ErrReorgDepthExceeded)
	}

	for i := len(s.Deltas) - 1; i >= 0; i-- {
		if err := m.registry.Restore(s.Deltas[i].Pre); err != nil {
			return fmt.Errorf("rollback block %d: %w", s.BlockNumber, err)
		}
	}
	if len(s.Deltas) > 0 {
		if err := m.registry.Commit(); err != nil {
			return err
		}
	}
	m.logger.Debug("block rolled back", "block", s.BlockNumber, "deltas", len(s.Deltas))
	return nil
}

func (m *Manager) filterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		var err error
		logs, err = m.provider.FilterLogs(ctx, m.addresses, m.topics, from, to)
		return err
	})
	if err != nil {
		return nil, &ProviderError{Op: "filter logs", Err: err}
	}
	return logs, nil
}

func (m *Manager) headerByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	var header *types.Header
	err := withRetry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		var err error
		header, err = m.provider.HeaderByNumber(ctx, number)
		return err
	})
	if err != nil {
		return nil, &ProviderError{Op: "header by number", Err: err}
	}
	return header, nil
}
