package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/auth"
	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

//go:embed schema.graphqls
var schemaSource string

// ExecutableSchema serves the search schema to a gqlgen handler. The schema has
// a single root field, so selections are walked directly instead of through
// generated resolvers.
type ExecutableSchema struct {
	schema  *ast.Schema
	service search.Service
	timeout time.Duration
	logger  *zap.Logger
}

var _ graphql.ExecutableSchema = (*ExecutableSchema)(nil)

// Option configures an ExecutableSchema.
type Option func(*ExecutableSchema)

// WithQueryTimeout bounds each search call.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *ExecutableSchema) { s.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *ExecutableSchema) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewExecutableSchema(service search.Service, opts ...Option) (*ExecutableSchema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})
	if err != nil {
		return nil, fmt.Errorf("load graphql schema: %w", err)
	}
	s := &ExecutableSchema{schema: schema, service: service, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ExecutableSchema) Schema() *ast.Schema {
	return s.schema
}

func (s *ExecutableSchema) Complexity(ctx context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

func (s *ExecutableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	if opCtx.Operation.Operation != ast.Query {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "only query operations are supported"))
	}

	var done bool
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true
		return s.execQuery(ctx, opCtx)
	}
}

func (s *ExecutableSchema) execQuery(ctx context.Context, opCtx *graphql.OperationContext) *graphql.Response {
	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Query"})
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Query")
		case "__schema", "__type":
			if opCtx.DisableIntrospection {
				return &graphql.Response{Errors: gqlerror.List{fieldError(field, "introspection is disabled")}}
			}
			if field.Name == "__schema" {
				out.Values[i] = project(opCtx, field.Selections, schemaObject{s: s.schema})
			} else {
				name, _ := field.ArgumentMap(opCtx.Variables)["name"].(string)
				out.Values[i] = projectValue(opCtx, field, definitionType(s.schema, s.schema.Types[name]))
			}
		case "search":
			value, gqlErr := s.resolveSearch(ctx, opCtx, field)
			if gqlErr != nil {
				// search is non-null, so the error nulls the whole response
				return &graphql.Response{Errors: gqlerror.List{gqlErr}}
			}
			out.Values[i] = value
		default:
			return &graphql.Response{Errors: gqlerror.List{fieldError(field, fmt.Sprintf("field %q is not available", field.Name))}}
		}
	}

	var buf bytes.Buffer
	out.MarshalGQL(&buf)
	return &graphql.Response{Data: buf.Bytes()}
}

func (s *ExecutableSchema) resolveSearch(ctx context.Context, opCtx *graphql.OperationContext, field graphql.CollectedField) (graphql.Marshaler, *gqlerror.Error) {
	tenant, ok := auth.OrganizationIDFromContext(ctx)
	if !ok {
		return nil, toGQLError(field, search.NewValidationError("tenant", "organization scope is required"))
	}

	input, _ := field.ArgumentMap(opCtx.Variables)["input"].(map[string]any)
	req, err := search.ParseRequestMap(input)
	if err != nil {
		return nil, toGQLError(field, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result, err := s.service.Search(ctx, tenant, auth.ScopeFromContext(ctx), req)
	if err != nil {
		if search.CodeOf(err) == search.ErrCodeExecution {
			cause := err
			var execErr *search.ExecutionError
			if errors.As(err, &execErr) {
				cause = execErr.Unwrap()
			}
			s.logger.Error("[GRAPHQL] search failed", zap.String("organizationId", tenant.String()), zap.Error(cause))
		}
		return nil, toGQLError(field, err)
	}
	return projectResult(opCtx, field.Selections, result), nil
}

func projectResult(opCtx *graphql.OperationContext, selections ast.SelectionSet, result domain.SearchResult) graphql.Marshaler {
	fields := graphql.CollectFields(opCtx, selections, []string{"SearchResult"})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		switch f.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("SearchResult")
		case "results":
			list := make(graphql.Array, len(result.Results))
			for j, rec := range result.Results {
				list[j] = jsonValue(rec)
			}
			out.Values[i] = list
		case "nextCursor":
			if result.NextCursor == "" {
				out.Values[i] = graphql.Null
			} else {
				out.Values[i] = graphql.MarshalString(result.NextCursor)
			}
		case "errors":
			list := make(graphql.Array, len(result.Errors))
			for j, entityErr := range result.Errors {
				list[j] = projectEntityError(opCtx, f.Selections, entityErr)
			}
			out.Values[i] = list
		default:
			out.Values[i] = graphql.Null
		}
	}
	return out
}

func projectEntityError(opCtx *graphql.OperationContext, selections ast.SelectionSet, entityErr domain.EntityError) graphql.Marshaler {
	fields := graphql.CollectFields(opCtx, selections, []string{"EntityError"})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		switch f.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("EntityError")
		case "entity":
			out.Values[i] = graphql.MarshalString(string(entityErr.Entity))
		case "message":
			out.Values[i] = graphql.MarshalString(entityErr.Message)
		default:
			out.Values[i] = graphql.Null
		}
	}
	return out
}

// jsonValue writes v as a JSON scalar.
func jsonValue(v any) graphql.Marshaler {
	raw, err := json.Marshal(v)
	if err != nil {
		return graphql.Null
	}
	return graphql.WriterFunc(func(w io.Writer) {
		_, _ = w.Write(raw)
	})
}

func fieldError(field graphql.CollectedField, message string) *gqlerror.Error {
	gqlErr := &gqlerror.Error{
		Message:    message,
		Path:       ast.Path{ast.PathName(field.Alias)},
		Extensions: map[string]any{},
	}
	if field.Position != nil {
		gqlErr.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return gqlErr
}

func toGQLError(field graphql.CollectedField, err error) *gqlerror.Error {
	gqlErr := fieldError(field, err.Error())
	gqlErr.Extensions["code"] = search.CodeOf(err)
	var (
		validation *search.ValidationError
		violation  *search.ScopeViolation
		execErr    *search.ExecutionError
	)
	switch {
	case errors.As(err, &validation):
		gqlErr.Extensions["issues"] = validation.Issues
	case errors.As(err, &violation), errors.As(err, &execErr):
	default:
		gqlErr.Message = "search execution failed"
	}
	return gqlErr
}
