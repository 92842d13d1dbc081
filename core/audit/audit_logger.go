package audit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medvault/core/logging"
)

// AuditEvent records an operation the vault refused or a step an operator
// should be able to trace (rejected reads, failed payouts, genesis).
type AuditEvent struct {
	Timestamp time.Time
	EventType string // operation name, e.g. "GetRecord"
	EntityID  string // caller address
	Result    string // "success" or "failure"
	Reason    string // errs reason string
	Metadata  map[string]string
}

// AuditLogger is the interface for logging audit events.
type AuditLogger interface {
	LogEvent(event AuditEvent)
}

// ZerologAuditLogger writes audit events as structured log lines.
type ZerologAuditLogger struct {
	log zerolog.Logger
}

func NewZerologAuditLogger(log zerolog.Logger) AuditLogger {
	return &ZerologAuditLogger{log: logging.Component(log, "audit")}
}

func (l *ZerologAuditLogger) LogEvent(event AuditEvent) {
	e := l.log.Info()
	if event.Result == "failure" {
		e = l.log.Warn()
	}
	dict := zerolog.Dict()
	for k, v := range event.Metadata {
		dict = dict.Str(k, v)
	}
	e.Time("at", event.Timestamp).
		Str("event", event.EventType).
		Str("entity", event.EntityID).
		Str("result", event.Result).
		Str("reason", event.Reason).
		Dict("meta", dict).
		Msg("[AUDIT]")
}

// MemoryAuditLogger keeps events in memory for inspection.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (l *MemoryAuditLogger) LogEvent(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEvent(nil), l.events...)
}
