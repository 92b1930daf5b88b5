package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

// SearchExecuted is published after every successful search.
type SearchExecuted struct {
	OrganizationID uuid.UUID           `json:"organizationId"`
	EntityType     domain.EntityType   `json:"entityType"`
	FilterGroups   int                 `json:"filterGroups"`
	HasSearchTerm  bool                `json:"hasSearchTerm"`
	ResultCount    int                 `json:"resultCount"`
	HasNextPage    bool                `json:"hasNextPage"`
	FailedEntities []domain.EntityType `json:"failedEntities,omitempty"`
	DurationMS     int64               `json:"durationMs"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// conn is the part of *nats.Conn used here.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher emits search analytics events on a NATS subject.
type Publisher struct {
	conn    conn
	subject string
}

// Connect dials NATS and returns a publisher plus its close function.
func Connect(url, subject string) (*Publisher, func(), error) {
	nc, err := nats.Connect(url, nats.Name("contentql"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewPublisher(nc, subject), nc.Close, nil
}

// NewPublisher publishes on subject through c.
func NewPublisher(c conn, subject string) *Publisher {
	if subject == "" {
		subject = "search.executed"
	}
	return &Publisher{conn: c, subject: subject}
}

// Publish sends evt. The connection buffers, so this does not block on the server.
func (p *Publisher) Publish(evt SearchExecuted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// PublishingService emits a SearchExecuted event for every successful search
// of next. Publish failures are logged and never fail the search.
type PublishingService struct {
	next      search.Service
	publisher *Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewPublishingService(next search.Service, publisher *Publisher, logger *zap.Logger) *PublishingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishingService{next: next, publisher: publisher, logger: logger, now: time.Now}
}

// Search implements search.Service.
func (s *PublishingService) Search(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	start := s.now()
	result, err := s.next.Search(ctx, tenant, scope, req)
	if err != nil {
		return result, err
	}

	evt := SearchExecuted{
		OrganizationID: tenant,
		EntityType:     req.EntityType,
		FilterGroups:   len(req.FilterGroups),
		HasSearchTerm:  req.Search != "",
		ResultCount:    len(result.Results),
		HasNextPage:    result.NextCursor != "",
		DurationMS:     s.now().Sub(start).Milliseconds(),
		OccurredAt:     s.now().UTC(),
	}
	for _, e := range result.Errors {
		evt.FailedEntities = append(evt.FailedEntities, e.Entity)
	}
	if pubErr := s.publisher.Publish(evt); pubErr != nil {
		s.logger.Warn("[EVENTS] failed to publish search event", zap.Error(pubErr))
	}
	return result, nil
}
