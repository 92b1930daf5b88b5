package search

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/domain"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type postFixture struct {
	id        uuid.UUID
	title     string
	status    string
	views     int
	tags      []string
	excerpt   *string
	author    *uuid.UUID
	featured  bool
	createdAt time.Time
}

// store is an in-memory SQLite database seeded with two organizations.
type store struct {
	exec  *db.SQLiteExecutor
	orgA  uuid.UUID
	orgB  uuid.UUID
	ada   uuid.UUID
	grace uuid.UUID
	posts map[string]uuid.UUID
	media map[string]uuid.UUID
}

func strPtr(s string) *string { return &s }

func newStore(t *testing.T) *store {
	t.Helper()
	ctx := context.Background()
	exec, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	s := &store{
		exec:  exec,
		orgA:  uuid.New(),
		orgB:  uuid.New(),
		ada:   uuid.New(),
		grace: uuid.New(),
		posts: map[string]uuid.UUID{},
		media: map[string]uuid.UUID{},
	}
	s.execSQL(t, "INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, 'Acme', ?, ?), (?, 'Globex', ?, ?)",
		s.orgA, base, base, s.orgB, base, base)

	outsider := uuid.New()
	s.insertUser(t, s.orgA, s.ada, "ada@acme.test", "Ada Lovelace", base.Add(2*time.Minute))
	s.insertUser(t, s.orgA, s.grace, "grace@acme.test", "Grace Hopper", base.Add(33*time.Minute))
	s.insertUser(t, s.orgB, outsider, "eve@globex.test", "Eve Outsider", base.Add(3*time.Minute))

	s.insertPost(t, s.orgA, "p1", postFixture{title: "Hello World", status: "published", views: 5, tags: []string{"go", "news"}, excerpt: strPtr("intro"), author: &s.ada, featured: true, createdAt: base.Add(10 * time.Minute)})
	s.insertPost(t, s.orgA, "p2", postFixture{title: "hello again", status: "draft", views: 10, tags: []string{"go"}, excerpt: strPtr("more"), author: &s.ada, createdAt: base.Add(20 * time.Minute)})
	s.insertPost(t, s.orgA, "p3", postFixture{title: "Release notes", status: "published", views: 15, tags: []string{"release"}, excerpt: strPtr("notes"), author: &s.grace, createdAt: base.Add(30 * time.Minute)})
	s.insertPost(t, s.orgA, "p4", postFixture{title: "Say Hello", status: "published", views: 20, tags: []string{}, excerpt: strPtr("greeting"), createdAt: base.Add(40 * time.Minute)})
	s.insertPost(t, s.orgA, "p5", postFixture{title: "Archive", status: "archived", views: 25, tags: []string{"news"}, createdAt: base.Add(50 * time.Minute)})
	// authored by a user of another organization: the join must not see it
	s.insertPost(t, s.orgA, "p6", postFixture{title: "100% done", status: "draft", views: 30, tags: []string{}, excerpt: strPtr("progress"), author: &outsider, createdAt: base.Add(60 * time.Minute)})
	s.insertPost(t, s.orgB, "b1", postFixture{title: "Hello from Globex", status: "published", views: 12, tags: []string{"go"}, createdAt: base.Add(15 * time.Minute)})

	s.insertMedia(t, s.orgA, "m1", "hello.png", "image/png", base.Add(5*time.Minute))
	s.insertMedia(t, s.orgA, "m2", "report.pdf", "application/pdf", base.Add(25*time.Minute))
	s.insertMedia(t, s.orgA, "m3", "banner.png", "image/png", base.Add(45*time.Minute))
	s.insertMedia(t, s.orgB, "bm1", "globex.png", "image/png", base.Add(35*time.Minute))

	s.execSQL(t, "INSERT INTO taxonomies (id, organization_id, name, slug, kind, created_at, updated_at) VALUES (?, ?, 'News', 'news', 'category', ?, ?)",
		uuid.New(), s.orgA, base.Add(time.Minute), base.Add(time.Minute))
	return s
}

func (s *store) execSQL(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := s.exec.DB().ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

func (s *store) insertUser(t *testing.T, org, id uuid.UUID, email, name string, at time.Time) {
	t.Helper()
	s.execSQL(t, "INSERT INTO users (id, organization_id, email, display_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, org, email, name, at, at)
}

func (s *store) insertPost(t *testing.T, org uuid.UUID, key string, p postFixture) uuid.UUID {
	t.Helper()
	id := uuid.New()
	tags, err := json.Marshal(p.tags)
	require.NoError(t, err)
	var author any
	if p.author != nil {
		author = *p.author
	}
	var excerpt any
	if p.excerpt != nil {
		excerpt = *p.excerpt
	}
	s.execSQL(t, `INSERT INTO posts (id, organization_id, title, slug, excerpt, status, author_id, views, featured, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, org, p.title, key, excerpt, p.status, author, p.views, p.featured, string(tags), p.createdAt, p.createdAt)
	s.posts[key] = id
	return id
}

func (s *store) insertMedia(t *testing.T, org uuid.UUID, key, filename, mime string, at time.Time) {
	t.Helper()
	id := uuid.New()
	s.execSQL(t, "INSERT INTO media (id, organization_id, filename, title, mime_type, size, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 1024, ?, ?)",
		id, org, filename, filename, mime, at, at)
	s.media[key] = id
}

func (s *store) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(DefaultSearchers(s.exec))
	require.NoError(t, err)
	return o
}

// postKeys maps result ids back to fixture keys, in result order.
func (s *store) postKeys(records []domain.Record) []string {
	byID := make(map[string]string, len(s.posts))
	for key, id := range s.posts {
		byID[id.String()] = key
	}
	for key, id := range s.media {
		byID[id.String()] = key
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, byID[rec["id"].(string)])
	}
	return out
}

// countingExecutor records how many queries reach the store.
type countingExecutor struct {
	db.Executor
	calls atomic.Int32
}

func (c *countingExecutor) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	c.calls.Add(1)
	return c.Executor.Query(ctx, query, args...)
}

func filterGroup(op domain.GroupOperator, filters ...domain.Filter) domain.FilterGroup {
	return domain.FilterGroup{Operator: op, Filters: filters}
}

func eq(property string, value any) domain.Filter {
	return domain.Filter{Property: property, Operator: domain.OperatorEq, Value: value}
}
