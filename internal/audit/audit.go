// Package audit records an append-only structured trail of GC runs and
// Raft membership/leadership changes, one JSON line per event. It is the
// teacher's homegrown structured-logging entry/aggregator design narrowed
// to a single purpose: every event is written through immediately, never
// buffered, since an audit trail that can be dropped on crash defeats its
// own point.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind names the category of an audit event.
type Kind string

const (
	KindGCRun               Kind = "gc_run"
	KindGCOrphanCollected   Kind = "gc_orphan_collected"
	KindRaftLeaderChange    Kind = "raft_leader_change"
	KindRaftMembershipChange Kind = "raft_membership_change"
	KindRaftSnapshot        Kind = "raft_snapshot"
)

// Event is one audit record.
type Event struct {
	Kind      Kind                   `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Destination receives every recorded event, in order.
type Destination interface {
	Write(Event) error
}

// WriterDestination appends each event as one JSON line to Writer.
type WriterDestination struct {
	mu     sync.Mutex
	Writer io.Writer
}

// Write implements Destination.
func (d *WriterDestination) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.Writer.Write(append(data, '\n'))
	return err
}

// Trail fans a recorded event out to every destination and logs it via
// zap for operational visibility. A Trail with no destinations still logs.
type Trail struct {
	mu           sync.Mutex
	destinations []Destination
	logger       *zap.Logger
}

// New builds a Trail. A nil logger is replaced with zap.NewNop().
func New(logger *zap.Logger, destinations ...Destination) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{destinations: destinations, logger: logger}
}

// AddDestination registers another sink for future events.
func (t *Trail) AddDestination(d Destination) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destinations = append(t.destinations, d)
}

// Record appends a new event of kind with the given fields, writing it to
// every destination and logging it at info level. Destination write errors
// are logged but never returned: a slow or broken destination must not
// block the GC or Raft path that is recording the event.
func (t *Trail) Record(kind Kind, fields map[string]interface{}) {
	ev := Event{Kind: kind, Timestamp: time.Now().UTC(), Fields: fields}

	t.mu.Lock()
	dests := t.destinations
	t.mu.Unlock()

	for _, d := range dests {
		if err := d.Write(ev); err != nil {
			t.logger.Warn("audit destination write failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("kind", string(kind)))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	t.logger.Info("audit event", zf...)
}
