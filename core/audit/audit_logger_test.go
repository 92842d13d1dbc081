package audit

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAuditLogger(zerolog.New(&buf))
	l.LogEvent(AuditEvent{
		Timestamp: time.Unix(1_700_000_000, 0),
		EventType: "GetRecord",
		EntityID:  "0x00000000000000000000000000000000000000ee",
		Result:    "failure",
		Reason:    "not allowed",
		Metadata:  map[string]string{"kind": "diagnosis"},
	})
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"reason":"not allowed"`)
	assert.Contains(t, out, `"kind":"diagnosis"`)
	assert.Contains(t, out, `"component":"audit"`)
}

func TestMemoryAuditLogger(t *testing.T) {
	l := &MemoryAuditLogger{}
	l.LogEvent(AuditEvent{EventType: "Withdraw", Result: "success"})
	evs := l.Events()
	assert.Len(t, evs, 1)
	assert.Equal(t, "Withdraw", evs[0].EventType)
}
