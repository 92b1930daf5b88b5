package search

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/domain"
)

var (
	pgTenant  = uuid.MustParse("2b7c6f0e-7b55-4d4b-9d0c-0f6c1c1a9e01")
	pgDialect = db.NewDialect("postgres")
)

func postgresSQL(t *testing.T, q Query) (string, []any) {
	t.Helper()
	p, err := PostsSchema().plan(q, nil)
	require.NoError(t, err)
	cq := buildQuery(pgDialect, pgTenant, p)
	return pgDialect.Rebind(cq.sql), cq.args
}

func TestBuildQuery_TenantFirstAndParameterised(t *testing.T) {
	sql, args := postgresSQL(t, Query{
		Properties:   []string{"title"},
		FilterGroups: []domain.FilterGroup{filterGroup(domain.GroupAnd, eq("status", "published"))},
		Limit:        10,
	})
	assert.Equal(t,
		"SELECT p.title, p.id, p.created_at FROM posts p WHERE p.organization_id = $1 AND ((p.status = $2)) ORDER BY p.created_at DESC, p.id DESC LIMIT 11",
		sql)
	assert.Equal(t, []any{pgTenant, "published"}, args)
}

func TestBuildQuery_GroupsSearchAndJoins(t *testing.T) {
	sql, args := postgresSQL(t, Query{
		Properties: []string{"title"},
		FilterGroups: []domain.FilterGroup{
			filterGroup(domain.GroupOr,
				domain.Filter{Property: "tags", Operator: domain.OperatorContains, Value: "go"},
				domain.Filter{Property: "authorName", Operator: domain.OperatorStartsWith, Value: "Ada"}),
			filterGroup(domain.GroupAnd, domain.Filter{Property: "views", Operator: domain.OperatorBetween, Value: []any{10, 20}}),
		},
		Search: "50%_off",
	})

	assert.Contains(t, sql, "FROM posts p LEFT JOIN users au ON au.id = p.author_id AND au.organization_id = p.organization_id WHERE")
	assert.Contains(t, sql, "((EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(p.tags, '[]'::jsonb)) AS elem(value) WHERE elem.value = $2)) OR (LOWER(au.display_name) LIKE $3 ESCAPE '\\'))")
	assert.Contains(t, sql, "AND ((p.views BETWEEN $4 AND $5))")
	assert.Contains(t, sql, "(LOWER(p.title) LIKE $6 ESCAPE '\\' OR LOWER(p.slug) LIKE $7 ESCAPE '\\'")
	assert.Equal(t, "go", args[1])
	assert.Equal(t, "ada%", args[2])
	assert.Equal(t, []any{int64(10), int64(20)}, args[3:5])
	assert.Equal(t, `%50\%\_off%`, args[5])
	assert.Contains(t, sql, "LIMIT 21")
}

func TestBuildQuery_JoinOnlyWhenReferenced(t *testing.T) {
	sql, _ := postgresSQL(t, Query{})
	assert.NotContains(t, sql, "JOIN")

	sql, _ = postgresSQL(t, Query{Properties: []string{"authorName"}})
	assert.Contains(t, sql, "LEFT JOIN users au")
}

func TestBuildQuery_Keyset(t *testing.T) {
	schema := PostsSchema()
	first, err := schema.plan(Query{}, nil)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	id := uuid.MustParse("8d9d5c59-2f4e-4c7b-a1a4-1c0e3d7f6b10")
	cursor := encodeEntityCursor(domain.EntityTypePosts, first.sorts, []any{at, id.String()})

	sql, args := postgresSQL(t, Query{After: cursor})
	assert.Contains(t, sql, "AND ((p.created_at < $2) OR (p.created_at = $3 AND p.id < $4)) ORDER BY")
	assert.Equal(t, []any{pgTenant, at, at, id}, args)

	sql, _ = postgresSQL(t, Query{Sorts: []domain.SortConfig{{Property: "views"}, {Property: "title", Direction: domain.SortDirectionDesc}}})
	assert.Contains(t, sql, `ORDER BY p.views ASC, p.title COLLATE "C" DESC, p.id ASC`)
}

func TestBuildQuery_TextKeysUseByteOrder(t *testing.T) {
	schema := PostsSchema()
	sorts := []domain.SortConfig{{Property: "title"}}
	first, err := schema.plan(Query{Sorts: sorts}, nil)
	require.NoError(t, err)
	id := uuid.MustParse("8d9d5c59-2f4e-4c7b-a1a4-1c0e3d7f6b10")
	cursor := encodeEntityCursor(domain.EntityTypePosts, first.sorts, []any{"Hello", id.String()})

	sql, args := postgresSQL(t, Query{Sorts: sorts, After: cursor})
	assert.Contains(t, sql, `AND ((p.title COLLATE "C" > $2) OR (p.title COLLATE "C" = $3 AND p.id > $4)) ORDER BY p.title COLLATE "C" ASC, p.id ASC`)
	assert.Equal(t, []any{pgTenant, "Hello", "Hello", id}, args)

	p, err := schema.plan(Query{Sorts: sorts}, nil)
	require.NoError(t, err)
	cq := buildQuery(db.NewDialect("sqlite"), pgTenant, p)
	assert.Contains(t, cq.sql, "ORDER BY p.title ASC, p.id ASC")
	assert.NotContains(t, cq.sql, "COLLATE")
}

func TestBuildQuery_SortsStopAtID(t *testing.T) {
	sql, _ := postgresSQL(t, Query{Sorts: []domain.SortConfig{
		{Property: "id", Direction: domain.SortDirectionDesc},
		{Property: "title"},
	}})
	assert.Contains(t, sql, "ORDER BY p.id DESC LIMIT 21")
}

func TestBuildQuery_ScopeConstraints(t *testing.T) {
	scope := &Scope{Constraints: map[domain.EntityType][]domain.Filter{
		domain.EntityTypePosts: {{Property: "status", Operator: domain.OperatorIn, Value: []any{"published", "draft"}}},
	}}
	p, err := PostsSchema().plan(Query{}, scope)
	require.NoError(t, err)
	cq := buildQuery(pgDialect, pgTenant, p)
	assert.Contains(t, pgDialect.Rebind(cq.sql), "WHERE p.organization_id = $1 AND (p.status IN ($2, $3))")
}

func TestBuildQuery_SQLiteArrays(t *testing.T) {
	p, err := PostsSchema().plan(Query{FilterGroups: []domain.FilterGroup{
		filterGroup(domain.GroupAnd, domain.Filter{Property: "tags", Operator: domain.OperatorNotIn, Value: []any{"a", "b"}}),
	}}, nil)
	require.NoError(t, err)
	cq := buildQuery(db.NewDialect("sqlite"), pgTenant, p)
	assert.Contains(t, cq.sql, "NOT EXISTS (SELECT 1 FROM json_each(COALESCE(p.tags, '[]')) AS elem WHERE elem.value IN (?, ?))")
}
