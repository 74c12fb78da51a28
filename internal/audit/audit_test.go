package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrail_Record_WritesJSONLineToDestination(t *testing.T) {
	var buf bytes.Buffer
	dest := &WriterDestination{Writer: &buf}
	trail := New(zap.NewNop(), dest)

	trail.Record(KindGCRun, map[string]interface{}{"orphans": 3, "dry_run": false})

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, KindGCRun, got.Kind)
	assert.Equal(t, float64(3), got.Fields["orphans"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestTrail_Record_LogsEvenWithoutDestinations(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	trail := New(zap.New(core))

	trail.Record(KindRaftLeaderChange, map[string]interface{}{"node_id": "n1"})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit event", entries[0].Message)
}

type failingDestination struct{}

func (failingDestination) Write(Event) error { return errors.New("destination down") }

func TestTrail_Record_DestinationErrorDoesNotPanic(t *testing.T) {
	trail := New(zap.NewNop(), failingDestination{})
	assert.NotPanics(t, func() {
		trail.Record(KindGCOrphanCollected, nil)
	})
}
