// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for completion turns)
	TotalPromptTokens     int64
	TotalCompletionTokens int64
	MaxPromptTokens       int64
	MaxCompletionTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`

	// Token stats (nil if not applicable)
	TotalPromptTokens     *int64   `json:"totalPromptTokens,omitempty"`
	TotalCompletionTokens *int64   `json:"totalCompletionTokens,omitempty"`
	AvgPromptTokens       *float64 `json:"avgPromptTokens,omitempty"`
	AvgCompletionTokens   *float64 `json:"avgCompletionTokens,omitempty"`
	MaxPromptTokens       *int64   `json:"maxPromptTokens,omitempty"`
	MaxCompletionTokens   *int64   `json:"maxCompletionTokens,omitempty"`
}

// Snapshot represents the full host statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptimeSeconds"`
	ActiveSessions int64              `json:"activeSessions"`
	Turn           *OperationSnapshot `json:"turn,omitempty"`
	FirstFragment  *OperationSnapshot `json:"firstFragment,omitempty"`
	LedgerWrite    *OperationSnapshot `json:"ledgerWrite,omitempty"`
	Errors         map[string]int64   `json:"errors,omitempty"`
}

// Operation names for the collector.
const (
	OpTurn          = "turn"
	OpFirstFragment = "first_fragment"
	OpLedgerWrite   = "ledger_write"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	errors    map[string]int64
	sessions  int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		errors:    make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) addTiming(d time.Duration) {
	m.Count++
	m.TotalTime += d
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).addTiming(duration)
}

// RecordTurn records timing and token usage of a finished completion turn.
func (c *Collector) RecordTurn(duration time.Duration, promptTokens, completionTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpTurn)
	m.addTiming(duration)

	m.TotalPromptTokens += promptTokens
	m.TotalCompletionTokens += completionTokens
	if promptTokens > m.MaxPromptTokens {
		m.MaxPromptTokens = promptTokens
	}
	if completionTokens > m.MaxCompletionTokens {
		m.MaxCompletionTokens = completionTokens
	}
}

// RecordError counts a turn-ending error of the given kind.
func (c *Collector) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[kind]++
}

// SessionOpened and SessionClosed track live view connections.
func (c *Collector) SessionOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions++
}

// SessionClosed decrements the live session count.
func (c *Collector) SessionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions > 0 {
		c.sessions--
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens {
		totalIn := m.TotalPromptTokens
		totalOut := m.TotalCompletionTokens
		avgIn := float64(m.TotalPromptTokens) / float64(m.Count)
		avgOut := float64(m.TotalCompletionTokens) / float64(m.Count)
		maxIn := m.MaxPromptTokens
		maxOut := m.MaxCompletionTokens

		snap.TotalPromptTokens = &totalIn
		snap.TotalCompletionTokens = &totalOut
		snap.AvgPromptTokens = &avgIn
		snap.AvgCompletionTokens = &avgOut
		snap.MaxPromptTokens = &maxIn
		snap.MaxCompletionTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs map[string]int64
	if len(c.errors) > 0 {
		errs = make(map[string]int64, len(c.errors))
		for k, v := range c.errors {
			errs[k] = v
		}
	}

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		ActiveSessions: c.sessions,
		Turn:           snapshotOp(c.ops[OpTurn], true),
		FirstFragment:  snapshotOp(c.ops[OpFirstFragment], false),
		LedgerWrite:    snapshotOp(c.ops[OpLedgerWrite], false),
		Errors:         errs,
	}
}
