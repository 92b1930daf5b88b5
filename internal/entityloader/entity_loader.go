package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/contentql/internal/auth"
	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

// RelationAuthor expands posts with their author's user record.
const RelationAuthor = "author"

var authorProperties = []string{"displayName", "email"}

type ctxKey string

const authorLoaderKey ctxKey = "authorLoader"

// AuthorLoader batches author lookups into one users search per tick. Lookups
// run as the tenant and scope found in the request context.
type AuthorLoader struct {
	Loader *dataloader.Loader
}

func NewAuthorLoader(svc search.Service) *AuthorLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		fail := func(err error) []*dataloader.Result {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		tenant, ok := auth.OrganizationIDFromContext(ctx)
		if !ok {
			return fail(fmt.Errorf("author lookup requires an organization scope"))
		}

		ids := make([]any, len(keys))
		for i, k := range keys {
			ids[i] = k.String()
		}
		req := domain.SearchRequest{
			EntityType: domain.EntityTypeUsers,
			Properties: authorProperties,
			FilterGroups: []domain.FilterGroup{{
				Operator: domain.GroupAnd,
				Filters:  []domain.Filter{{Property: "id", Operator: domain.OperatorIn, Value: ids}},
			}},
			Limit: len(keys),
		}
		res, err := svc.Search(ctx, tenant, auth.ScopeFromContext(ctx), req)
		if err != nil {
			return fail(err)
		}

		byID := make(map[string]domain.Record, len(res.Results))
		for _, rec := range res.Results {
			if id, ok := rec["id"].(string); ok {
				byID[id] = rec
			}
		}
		for i, k := range keys {
			if rec, ok := byID[k.String()]; ok {
				results[i] = &dataloader.Result{Data: rec}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn,
		dataloader.WithWait(5*time.Millisecond),
		dataloader.WithBatchCapacity(domain.MaxSearchLimit))

	return &AuthorLoader{Loader: loader}
}

// Load resolves one author by user id; a missing author yields nil.
func (l *AuthorLoader) Load(ctx context.Context, userID string) (domain.Record, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(userID))()
	if err != nil {
		return nil, err
	}
	rec, _ := data.(domain.Record)
	return rec, nil
}

func ContextWithAuthorLoader(ctx context.Context, l *AuthorLoader) context.Context {
	return context.WithValue(ctx, authorLoaderKey, l)
}

func AuthorLoaderFromContext(ctx context.Context) *AuthorLoader {
	if l, ok := ctx.Value(authorLoaderKey).(*AuthorLoader); ok {
		return l
	}
	return nil
}

// Expander implements search.Expander using the request's author loader.
type Expander struct{}

// Expand sets record["author"] for every record carrying an authorId. All
// lookups are issued before any is awaited so they share a batch.
func (Expander) Expand(ctx context.Context, relation string, records []domain.Record) error {
	if relation != RelationAuthor {
		return search.NewValidationError("expand", "unknown relation %q", relation)
	}
	loader := AuthorLoaderFromContext(ctx)
	if loader == nil {
		return fmt.Errorf("author loader missing from request context")
	}

	thunks := make([]dataloader.Thunk, len(records))
	for i, rec := range records {
		if id, ok := rec["authorId"].(string); ok && id != "" {
			thunks[i] = loader.Loader.Load(ctx, dataloader.StringKey(id))
		}
	}
	for i, thunk := range thunks {
		if thunk == nil {
			continue
		}
		data, err := thunk()
		if err != nil {
			return err
		}
		author, _ := data.(domain.Record)
		records[i]["author"] = author
	}
	return nil
}
