package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

type fixedService struct {
	result domain.SearchResult
	err    error
}

func (s fixedService) Search(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) (domain.SearchResult, error) {
	return s.result, s.err
}

func TestPublishingService_EmitsEvent(t *testing.T) {
	conn := &recordingConn{}
	tenant := uuid.New()
	svc := NewPublishingService(fixedService{result: domain.SearchResult{
		Results:    []domain.Record{{"id": "1"}, {"id": "2"}},
		NextCursor: "next",
		Errors:     []domain.EntityError{{Entity: domain.EntityTypeMedia, Message: "search execution failed for media"}},
	}}, NewPublisher(conn, ""), nil)

	req := domain.SearchRequest{
		EntityType:   domain.EntityTypeAll,
		Search:       "launch",
		FilterGroups: []domain.FilterGroup{{Filters: []domain.Filter{{Property: "status", Operator: domain.OperatorEq, Value: "published"}}}},
	}
	_, err := svc.Search(context.Background(), tenant, nil, req)
	require.NoError(t, err)

	require.Len(t, conn.payloads, 1)
	assert.Equal(t, "search.executed", conn.subjects[0])
	var evt SearchExecuted
	require.NoError(t, json.Unmarshal(conn.payloads[0], &evt))
	assert.Equal(t, tenant, evt.OrganizationID)
	assert.Equal(t, domain.EntityTypeAll, evt.EntityType)
	assert.Equal(t, 1, evt.FilterGroups)
	assert.True(t, evt.HasSearchTerm)
	assert.Equal(t, 2, evt.ResultCount)
	assert.True(t, evt.HasNextPage)
	assert.Equal(t, []domain.EntityType{domain.EntityTypeMedia}, evt.FailedEntities)
}

func TestPublishingService_SkipsFailedSearches(t *testing.T) {
	conn := &recordingConn{}
	svc := NewPublishingService(fixedService{err: search.NewValidationError("limit", "must be between 1 and 100")}, NewPublisher(conn, "analytics.search"), nil)

	_, err := svc.Search(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypePosts})
	require.Error(t, err)
	assert.Empty(t, conn.payloads)
}

func TestPublishingService_PublishErrorDoesNotFailSearch(t *testing.T) {
	conn := &recordingConn{err: errors.New("nats: connection closed")}
	svc := NewPublishingService(fixedService{result: domain.SearchResult{Results: []domain.Record{}}}, NewPublisher(conn, ""), nil)

	_, err := svc.Search(context.Background(), uuid.New(), nil, domain.SearchRequest{EntityType: domain.EntityTypePosts})
	require.NoError(t, err)
}
