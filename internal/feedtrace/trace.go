// Package feedtrace tracks what happened to each live-feed refresh as it
// moves through the reconciliation pipeline.
package feedtrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Stage represents a pipeline stage used for tracking refresh processing.
type Stage string

const (
	StageReceivedFromFeed Stage = "received_from_feed"
	StageIngestedOK       Stage = "ingested_ok"
	StageMergedToWall     Stage = "merged_to_wall"

	StageDroppedPrefix = "dropped_"
)

// StageDropped creates a Stage for dropped entries with the given reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// RefreshTrace captures trace metadata for one feed refresh as it moves
// through ingest, merge and selection reconciliation.
type RefreshTrace struct {
	Source   string
	Received int
	TraceID  string

	mu       sync.Mutex
	counters map[Stage]int64
}

// NewRefreshTrace constructs a trace for a refresh carrying the given
// number of raw entries and seeds the received_from_feed counter.
func NewRefreshTrace(source string, received int, seq uint64) *RefreshTrace {
	trace := &RefreshTrace{
		Source:   source,
		Received: received,
		TraceID:  computeTraceID(source, received, seq),
		counters: make(map[Stage]int64),
	}
	trace.counters[StageReceivedFromFeed] = int64(received)
	return trace
}

// AddCounter adds n to the counter for the provided stage and returns the
// updated value.
func (t *RefreshTrace) AddCounter(stage Stage, n int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage] += n
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters using structured logging.
func (t *RefreshTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info(msg,
		"trace_id", t.TraceID,
		"source", t.Source,
		"received", t.Received,
		"counters", t.snapshotCounters(),
	)
}

func (t *RefreshTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}
	return copy
}

func computeTraceID(source string, received int, seq uint64) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s\x1f%d\x1f%d", source, received, seq)))
	return hex.EncodeToString(digest[:])
}
