package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"materialcore/pkg/domain"
)

// OwnerResolver maps a configured owner name onto the identity stored on records.
type OwnerResolver func(ctx context.Context, name string) (string, error)

// DefaultOwner is used when no owner is configured.
const DefaultOwner = "admin"

func identityOwner(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("default owner is blank")
	}
	return name, nil
}

// ServiceOption customizes a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	owners       OwnerResolver
	defaultOwner string
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:        ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:       noopLogger{},
		audit:        noopAuditRecorder{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		owners:       identityOwner,
		defaultOwner: DefaultOwner,
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithOwnerResolver sets the resolver used for the registry default owner.
func WithOwnerResolver(resolver OwnerResolver) ServiceOption {
	return func(o *serviceOptions) {
		if resolver != nil {
			o.owners = resolver
		}
	}
}

// WithDefaultOwner sets the owner name resolved during registry initialization.
func WithDefaultOwner(name string) ServiceOption {
	return func(o *serviceOptions) {
		o.defaultOwner = name
	}
}

// Service exposes the transactional composition operations.
type Service struct {
	store        domain.PersistentStore
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	owners       OwnerResolver
	defaultOwner string

	registryOnce singleflight.Group
	registryMu   sync.RWMutex
	registry     *Registry
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:        store,
		clock:        o.clock,
		logger:       o.logger,
		audit:        o.audit,
		metrics:      o.metrics,
		tracer:       o.tracer,
		owners:       o.owners,
		defaultOwner: o.defaultOwner,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs the default composition rules.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

type operationMeta struct {
	entity EntityType
	action Action
}

var operationCatalog = map[string]operationMeta{
	"initialize_registry":          {EntityRegistry, ActionCreate},
	"create_component":             {EntityComponent, ActionCreate},
	"create_component_group":       {EntityComponentGroup, ActionCreate},
	"create_distribution":          {EntityDistribution, ActionCreate},
	"create_source":                {EntitySource, ActionCreate},
	"create_material":              {EntityMaterial, ActionCreate},
	"delete_material":              {EntityMaterial, ActionDelete},
	"create_standard_profile":      {EntityProfile, ActionCreate},
	"duplicate_profile":            {EntityProfile, ActionCreate},
	"update_profile":               {EntityProfile, ActionUpdate},
	"delete_profile":               {EntityProfile, ActionDelete},
	"add_component_group":          {EntityAssignment, ActionCreate},
	"remove_component_group":       {EntityAssignment, ActionDelete},
	"add_temporal_distribution":    {EntityAssignment, ActionUpdate},
	"remove_temporal_distribution": {EntityAssignment, ActionUpdate},
	"add_component":                {EntityAssignment, ActionUpdate},
	"remove_component":             {EntityAssignment, ActionUpdate},
	"link_source":                  {EntityAssignment, ActionUpdate},
	"unlink_source":                {EntityAssignment, ActionUpdate},
	"commit_edit":                  {EntitySnapshot, ActionUpdate},
}

// instrument wraps exec with tracing, metrics, logging and auditing.
func (s *Service) instrument(ctx context.Context, op string, exec func(ctx context.Context) (string, Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	entityID, res, err := exec(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		if isCallerError(err) {
			s.logger.Warn("operation rejected", "operation", op, "entity_id", entityID, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		}
		s.recordAudit(ctx, op, entityID, err, duration)
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
	}
	s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, nil, duration)
	return res, nil
}

// run executes fn in a single store transaction under instrumentation. fn
// returns the id of the primary record it touched.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Transaction) (string, error)) (Result, error) {
	return s.instrument(ctx, op, func(ctx context.Context) (string, Result, error) {
		var entityID string
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			id, err := fn(tx)
			entityID = id
			return err
		})
		return entityID, res, err
	})
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, err error, duration time.Duration) {
	meta, ok := operationCatalog[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// isCallerError reports errors the caller can correct and resubmit.
func isCallerError(err error) bool {
	kind, ok := domain.KindOf(err)
	if !ok {
		return false
	}
	return kind != domain.KindBootstrap && kind != domain.KindStorage
}
