package exports

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditLogger records export lifecycle events.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one export lifecycle event.
type AuditEntry struct {
	ExportID   string         `json:"export_id"`
	Actor      string         `json:"actor"`
	Status     Status         `json:"status"`
	ProfileIDs []string       `json:"profile_ids"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// SlogAuditLogger writes audit entries as structured log records.
type SlogAuditLogger struct {
	Logger *slog.Logger
}

// Record logs entry at info, or at warn for failed exports.
func (l SlogAuditLogger) Record(ctx context.Context, entry AuditEntry) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if entry.Status == StatusFailed {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("export_id", entry.ExportID),
		slog.String("actor", entry.Actor),
		slog.String("status", string(entry.Status)),
		slog.Any("profile_ids", entry.ProfileIDs),
		slog.Time("occurred_at", entry.OccurredAt),
	}
	if len(entry.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", entry.Metadata))
	}
	logger.LogAttrs(ctx, level, "export audit", attrs...)
}

// MemoryAuditLog keeps entries for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record appends entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
