package middleware

import (
	"context"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"go.uber.org/zap"
)

// OperationLoggerExtension logs each GraphQL operation with its duration and
// error count.
type OperationLoggerExtension struct {
	logger *zap.Logger
}

func NewOperationLoggerExtension(logger *zap.Logger) *OperationLoggerExtension {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLoggerExtension{logger: logger}
}

// ExtensionName implements graphql.HandlerExtension
func (e *OperationLoggerExtension) ExtensionName() string {
	return "OperationLogger"
}

// Validate implements graphql.HandlerExtension
func (e *OperationLoggerExtension) Validate(schema graphql.ExecutableSchema) error {
	return nil
}

// InterceptResponse implements graphql.ResponseInterceptor
func (e *OperationLoggerExtension) InterceptResponse(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	start := time.Now()
	resp := next(ctx)
	if resp == nil {
		return resp
	}
	name := ""
	if graphql.HasOperationContext(ctx) {
		name = graphql.GetOperationContext(ctx).OperationName
	}
	e.logger.Info("[GRAPHQL] operation",
		zap.String("operation", name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("errors", len(resp.Errors)))
	return resp
}
