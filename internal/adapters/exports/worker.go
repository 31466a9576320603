// Package exports renders composition profile tables into JSON and CSV
// artifacts on a background worker and stores them in blob storage.
package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"materialcore/internal/blob"
	"materialcore/internal/core"
)

// Status describes the lifecycle stage of an export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultQueueSize bounds pending exports when NewWorker gets a non-positive size.
const DefaultQueueSize = 16

// ErrQueueFull is returned by Enqueue when the worker is saturated.
var ErrQueueFull = errors.New("export queue full")

// Artifact is one stored rendering of one profile.
type Artifact struct {
	Key         string    `json:"key"`
	ProfileID   string    `json:"profile_id"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	ProfileIDs  []string   `json:"profile_ids"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the export reached a terminal status.
func (r Record) Done() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Input is an export request.
type Input struct {
	ProfileIDs  []string
	Formats     []Format
	RequestedBy string
}

// TableSource produces the tables of a profile. *core.Service implements it.
type TableSource interface {
	ProfileTables(ctx context.Context, profileID string) (core.ProfileTables, error)
}

// ArtifactKey is the blob key of one rendering: exports/<export-id>/profile-<id>.<ext>.
func ArtifactKey(exportID, profileID string, format Format) string {
	return fmt.Sprintf("exports/%s/profile-%s.%s", exportID, profileID, format)
}

// Worker executes exports one at a time in the background.
type Worker struct {
	source TableSource
	store  blob.Store
	audit  AuditLogger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type job struct {
	record Record
	done   chan struct{}
}

// NewWorker constructs a worker; Start must be called before jobs run.
func NewWorker(source TableSource, store blob.Store, audit AuditLogger, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan string, queueSize),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing queued exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running export to finish.
// Queued exports that never ran stay queued.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue validates input and schedules the export.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil || w.store == nil {
		return Record{}, errors.New("export worker not configured")
	}
	profileIDs := dedupe(input.ProfileIDs)
	if len(profileIDs) == 0 {
		return Record{}, errors.New("at least one profile id required")
	}
	formats := dedupe(input.Formats)
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	for _, f := range formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return Record{}, err
		}
	}

	now := time.Now().UTC()
	j := &job{
		record: Record{
			ID:          uuid.NewString(),
			ProfileIDs:  profileIDs,
			Formats:     append([]Format(nil), formats...),
			Status:      StatusQueued,
			RequestedBy: input.RequestedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		done: make(chan struct{}),
	}
	id := j.record.ID

	// Holding the lock until the queued entry is audited keeps the worker
	// from reporting the job as running first.
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case w.queue <- id:
	default:
		return Record{}, ErrQueueFull
	}
	w.jobs[id] = j
	queued := j.record.copy()
	w.record(ctx, queued, nil)
	return queued, nil
}

// Get returns a snapshot of the export.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	j, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return j.record.copy(), true
}

// Wait blocks until the export finishes or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	j, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("export %s not found", id)
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	rec, _ := w.Get(id)
	return rec, nil
}

func (w *Worker) process(id string) {
	rec, ok := w.Get(id)
	if !ok {
		return
	}
	running := w.update(id, func(r *Record) { r.Status = StatusRunning })
	w.record(w.ctx, running, nil)

	var artifacts []Artifact
	for _, profileID := range rec.ProfileIDs {
		tables, err := w.source.ProfileTables(w.ctx, profileID)
		if err != nil {
			w.abort(id, artifacts, fmt.Sprintf("load profile %s: %v", profileID, err))
			return
		}
		for _, format := range rec.Formats {
			artifact, err := w.put(id, profileID, format, tables)
			if err != nil {
				w.abort(id, artifacts, err.Error())
				return
			}
			artifacts = append(artifacts, artifact)
		}
	}
	w.finish(id, StatusSucceeded, "", artifacts)
}

func (w *Worker) put(exportID, profileID string, format Format, tables core.ProfileTables) (Artifact, error) {
	payload, err := Render(format, tables)
	if err != nil {
		return Artifact{}, fmt.Errorf("render profile %s: %w", profileID, err)
	}
	key := ArtifactKey(exportID, profileID, format)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: format.ContentType(),
		Metadata:    map[string]string{"export_id": exportID, "profile_id": profileID, "format": string(format)},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", key, err)
	}
	if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
		info.URL = url
	}
	return Artifact{
		Key:         key,
		ProfileID:   profileID,
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(payload)),
		ETag:        info.ETag,
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	}, nil
}

// abort removes artifacts written before the failure so a failed export
// leaves nothing behind.
func (w *Worker) abort(id string, written []Artifact, reason string) {
	for _, a := range written {
		_, _ = w.store.Delete(context.WithoutCancel(w.ctx), a.Key)
	}
	w.finish(id, StatusFailed, reason, nil)
}

func (w *Worker) finish(id string, status Status, reason string, artifacts []Artifact) {
	now := time.Now().UTC()
	rec := w.update(id, func(r *Record) {
		r.Status = status
		r.Error = reason
		r.Artifacts = artifacts
		r.CompletedAt = &now
	})
	var md map[string]any
	if reason != "" {
		md = map[string]any{"error": reason}
	} else {
		md = map[string]any{"artifacts": len(artifacts)}
	}
	w.record(context.WithoutCancel(w.ctx), rec, md)

	w.mu.RLock()
	if j, ok := w.jobs[id]; ok {
		close(j.done)
	}
	w.mu.RUnlock()
}

func (w *Worker) update(id string, fn func(*Record)) Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.jobs[id]
	if !ok {
		return Record{}
	}
	fn(&j.record)
	j.record.UpdatedAt = time.Now().UTC()
	return j.record.copy()
}

func (w *Worker) record(ctx context.Context, rec Record, md map[string]any) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ExportID:   rec.ID,
		Actor:      rec.RequestedBy,
		Status:     rec.Status,
		ProfileIDs: append([]string(nil), rec.ProfileIDs...),
		Metadata:   md,
		OccurredAt: rec.UpdatedAt,
	})
}

func (r Record) copy() Record {
	dup := r
	dup.ProfileIDs = append([]string(nil), r.ProfileIDs...)
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func dedupe[T ~string](in []T) []T {
	out := make([]T, 0, len(in))
	seen := make(map[T]struct{}, len(in))
	for _, v := range in {
		if strings.TrimSpace(string(v)) == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
