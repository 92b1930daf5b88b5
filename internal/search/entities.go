package search

import (
	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/domain"
)

var recencySort = []domain.SortConfig{{Property: "createdAt", Direction: domain.SortDirectionDesc}}

// PostsSchema declares the posts entity. authorName comes from the author's
// user row in the same organization.
func PostsSchema() *EntitySchema {
	return MustEntitySchema(EntitySchema{
		Entity:       domain.EntityTypePosts,
		Table:        "posts",
		Alias:        "p",
		TenantColumn: "organization_id",
		IDColumn:     "id",
		Joins: []Join{{
			Name:   "author",
			Clause: "LEFT JOIN users au ON au.id = p.author_id AND au.organization_id = p.organization_id",
		}},
		Columns: []Column{
			{Property: "id", Expr: "p.id", Type: ColumnID, Filterable: true, Sortable: true},
			{Property: "organizationId", Expr: "p.organization_id", Type: ColumnID, Filterable: true},
			{Property: "title", Expr: "p.title", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "slug", Expr: "p.slug", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "excerpt", Expr: "p.excerpt", Type: ColumnString, Nullable: true, Filterable: true, Searchable: true},
			{Property: "content", Expr: "p.content", Type: ColumnString, Filterable: true, Searchable: true},
			{Property: "status", Expr: "p.status", Type: ColumnString, Filterable: true, Sortable: true},
			{Property: "authorId", Expr: "p.author_id", Type: ColumnID, Nullable: true, Filterable: true},
			{Property: "authorName", Expr: "au.display_name", Type: ColumnString, Nullable: true, Filterable: true, Join: "author"},
			{Property: "views", Expr: "p.views", Type: ColumnNumber, Filterable: true, Sortable: true},
			{Property: "featured", Expr: "p.featured", Type: ColumnBoolean, Filterable: true},
			{Property: "tags", Expr: "p.tags", Type: ColumnArray, Filterable: true},
			{Property: "publishedAt", Expr: "p.published_at", Type: ColumnDate, Nullable: true, Filterable: true},
			{Property: "createdAt", Expr: "p.created_at", Type: ColumnDate, Filterable: true, Sortable: true},
			{Property: "updatedAt", Expr: "p.updated_at", Type: ColumnDate, Filterable: true, Sortable: true},
		},
		DefaultProperties: []string{"title", "slug", "status", "authorId", "publishedAt", "createdAt"},
		DefaultSort:       recencySort,
	})
}

// MediaSchema declares the media library entity.
func MediaSchema() *EntitySchema {
	return MustEntitySchema(EntitySchema{
		Entity:       domain.EntityTypeMedia,
		Table:        "media",
		Alias:        "m",
		TenantColumn: "organization_id",
		IDColumn:     "id",
		Columns: []Column{
			{Property: "id", Expr: "m.id", Type: ColumnID, Filterable: true, Sortable: true},
			{Property: "organizationId", Expr: "m.organization_id", Type: ColumnID, Filterable: true},
			{Property: "filename", Expr: "m.filename", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "title", Expr: "m.title", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "mimeType", Expr: "m.mime_type", Type: ColumnString, Filterable: true, Sortable: true},
			{Property: "size", Expr: "m.size", Type: ColumnNumber, Filterable: true, Sortable: true},
			{Property: "altText", Expr: "m.alt_text", Type: ColumnString, Nullable: true, Filterable: true, Searchable: true},
			{Property: "uploaderId", Expr: "m.uploader_id", Type: ColumnID, Nullable: true, Filterable: true},
			{Property: "createdAt", Expr: "m.created_at", Type: ColumnDate, Filterable: true, Sortable: true},
			{Property: "updatedAt", Expr: "m.updated_at", Type: ColumnDate, Filterable: true, Sortable: true},
		},
		DefaultProperties: []string{"filename", "title", "mimeType", "size", "createdAt"},
		DefaultSort:       recencySort,
	})
}

// UsersSchema declares organization members. Credentials are never declared.
func UsersSchema() *EntitySchema {
	return MustEntitySchema(EntitySchema{
		Entity:       domain.EntityTypeUsers,
		Table:        "users",
		Alias:        "u",
		TenantColumn: "organization_id",
		IDColumn:     "id",
		Columns: []Column{
			{Property: "id", Expr: "u.id", Type: ColumnID, Filterable: true, Sortable: true},
			{Property: "organizationId", Expr: "u.organization_id", Type: ColumnID, Filterable: true},
			{Property: "email", Expr: "u.email", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "displayName", Expr: "u.display_name", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "role", Expr: "u.role", Type: ColumnString, Filterable: true, Sortable: true},
			{Property: "active", Expr: "u.active", Type: ColumnBoolean, Filterable: true},
			{Property: "lastLoginAt", Expr: "u.last_login_at", Type: ColumnDate, Nullable: true, Filterable: true},
			{Property: "createdAt", Expr: "u.created_at", Type: ColumnDate, Filterable: true, Sortable: true},
			{Property: "updatedAt", Expr: "u.updated_at", Type: ColumnDate, Filterable: true, Sortable: true},
		},
		DefaultProperties: []string{"email", "displayName", "role", "active", "createdAt"},
		DefaultSort:       recencySort,
	})
}

// TaxonomiesSchema declares categories, tags and other term kinds.
func TaxonomiesSchema() *EntitySchema {
	return MustEntitySchema(EntitySchema{
		Entity:       domain.EntityTypeTaxonomies,
		Table:        "taxonomies",
		Alias:        "t",
		TenantColumn: "organization_id",
		IDColumn:     "id",
		Columns: []Column{
			{Property: "id", Expr: "t.id", Type: ColumnID, Filterable: true, Sortable: true},
			{Property: "organizationId", Expr: "t.organization_id", Type: ColumnID, Filterable: true},
			{Property: "name", Expr: "t.name", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "slug", Expr: "t.slug", Type: ColumnString, Filterable: true, Sortable: true, Searchable: true},
			{Property: "kind", Expr: "t.kind", Type: ColumnString, Filterable: true, Sortable: true},
			{Property: "parentId", Expr: "t.parent_id", Type: ColumnID, Nullable: true, Filterable: true},
			{Property: "description", Expr: "t.description", Type: ColumnString, Nullable: true, Filterable: true, Searchable: true},
			{Property: "createdAt", Expr: "t.created_at", Type: ColumnDate, Filterable: true, Sortable: true},
			{Property: "updatedAt", Expr: "t.updated_at", Type: ColumnDate, Filterable: true, Sortable: true},
		},
		DefaultProperties: []string{"name", "slug", "kind", "parentId", "createdAt"},
		DefaultSort:       recencySort,
	})
}

// DefaultSearchers returns the built-in searchers in registration order, which
// is also the tie-break order when merging fan-out results.
func DefaultSearchers(exec db.Executor) []EntitySearcher {
	return []EntitySearcher{
		NewSQLSearcher(PostsSchema(), exec),
		NewSQLSearcher(MediaSchema(), exec),
		NewSQLSearcher(UsersSchema(), exec),
		NewSQLSearcher(TaxonomiesSchema(), exec),
	}
}
