package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/domain"
)

// Service is the search entry point consumed by transports and decorators.
type Service interface {
	Search(ctx context.Context, tenant uuid.UUID, scope *Scope, req domain.SearchRequest) (domain.SearchResult, error)
}

// Orchestrator dispatches requests to entity searchers and merges fan-out
// results for the "all" entity type. It holds no per-request state.
type Orchestrator struct {
	searchers map[domain.EntityType]EntitySearcher
	order     []domain.EntityType
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for execution failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator registers searchers. Registration order is the fan-out
// order and breaks ties between entity types when merging.
func NewOrchestrator(searchers []EntitySearcher, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		searchers: make(map[domain.EntityType]EntitySearcher, len(searchers)),
		logger:    zap.NewNop(),
	}
	for _, s := range searchers {
		entity := s.Entity()
		if entity == "" || entity == domain.EntityTypeAll {
			return nil, fmt.Errorf("searcher entity %q cannot be registered", entity)
		}
		if _, dup := o.searchers[entity]; dup {
			return nil, fmt.Errorf("searcher for %q registered twice", entity)
		}
		o.searchers[entity] = s
		o.order = append(o.order, entity)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Entities lists the registered entity types in registration order.
func (o *Orchestrator) Entities() []domain.EntityType {
	return append([]domain.EntityType(nil), o.order...)
}

// Searcher returns the searcher registered for entity.
func (o *Orchestrator) Searcher(entity domain.EntityType) (EntitySearcher, bool) {
	s, ok := o.searchers[entity]
	return s, ok
}

// Search validates req for tenant and scope and runs it.
func (o *Orchestrator) Search(ctx context.Context, tenant uuid.UUID, scope *Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	if tenant == uuid.Nil {
		return domain.SearchResult{}, NewValidationError("tenant", "is required")
	}
	if req.EntityType == "" {
		return domain.SearchResult{}, NewValidationError("entityType", "is required")
	}
	if req.EntityType == domain.EntityTypeAll {
		return o.searchAll(ctx, tenant, scope, req)
	}

	searcher, ok := o.searchers[req.EntityType]
	if !ok {
		return domain.SearchResult{}, NewValidationError("entityType", "unknown entity type %q", req.EntityType)
	}
	page, err := searcher.Search(ctx, Target{Tenant: tenant, Scope: scope}, QueryFromRequest(req))
	if err != nil {
		o.logFailure(tenant, req.EntityType, err)
		return domain.SearchResult{}, err
	}
	return domain.SearchResult{Results: page.Records(), NextCursor: page.NextCursor}, nil
}

func (o *Orchestrator) logFailure(tenant uuid.UUID, entity domain.EntityType, err error) {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		return
	}
	o.logger.Error("[SEARCH] entity search failed",
		zap.String("tenant", tenant.String()),
		zap.String("entity", string(entity)),
		zap.Error(execErr.Unwrap()))
}
