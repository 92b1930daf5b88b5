package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/auth"
	"github.com/rpattn/contentql/internal/cache"
	"github.com/rpattn/contentql/internal/config"
	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/entityloader"
	"github.com/rpattn/contentql/internal/events"
	"github.com/rpattn/contentql/internal/export"
	"github.com/rpattn/contentql/internal/graphql"
	"github.com/rpattn/contentql/internal/middleware"
	"github.com/rpattn/contentql/internal/search"
)

// App holds the wired service graph shared by the serve, query and export
// commands.
type App struct {
	Config config.Config
	Logger *zap.Logger
	// Search is the orchestrator wrapped in the optional cache and event
	// decorators.
	Search       search.Service
	Orchestrator *search.Orchestrator
	Export       *export.Service

	closers []func()
}

// New opens the store selected by cfg.Database.Driver and wires the search
// stack on top of it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	exec, err := a.openExecutor(ctx)
	if err != nil {
		return nil, err
	}
	exec = db.NewBreakerExecutor(exec, cfg.Breaker, logger)

	orch, err := search.NewOrchestrator(search.DefaultSearchers(exec), search.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Orchestrator = orch

	var svc search.Service = orch
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("[CACHE] redis unreachable, continuing without cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
		} else {
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			svc = cache.NewSearchCache(svc, rdb, cfg.Redis.TTL, logger)
		}
	}
	if cfg.NATS.Enabled {
		pub, closeNATS, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, closeNATS)
		svc = events.NewPublishingService(svc, pub, logger)
	}
	a.Search = svc

	a.Export = export.NewService(svc,
		export.WithMaxRows(cfg.Search.MaxExportRows),
		export.WithLogger(logger))
	return a, nil
}

func (a *App) openExecutor(ctx context.Context) (db.Executor, error) {
	if strings.EqualFold(a.Config.Database.Driver, string(db.DialectSQLite)) {
		exec, err := db.OpenSQLite(ctx, a.Config.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = exec.Close() })
		a.Logger.Info("[DB] using sqlite store", zap.String("path", a.Config.Database.SQLitePath))
		return exec, nil
	}

	conn, err := db.NewConnection(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	a.Logger.Info("[DB] connected to postgres",
		zap.String("host", a.Config.Database.Host),
		zap.String("database", a.Config.Database.DBName))
	return conn.Executor(), nil
}

// Handler builds the HTTP surface: REST search, export, GraphQL with its
// playground, and health.
func (a *App) Handler() (http.Handler, error) {
	cfg := a.Config
	gqlSchema, err := graphql.NewExecutableSchema(a.Search,
		graphql.WithQueryTimeout(cfg.Search.QueryTimeout),
		graphql.WithLogger(a.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql executor: %w", err)
	}

	searchHandler := search.NewHTTPHandler(a.Search, auth.Identity,
		search.WithExpander(entityloader.Expander{}),
		search.WithQueryTimeout(cfg.Search.QueryTimeout),
		search.WithMaxCompatPages(cfg.Search.MaxCompatPages),
		search.WithHandlerLogger(a.Logger))

	api := http.NewServeMux()
	api.Handle("/api/v1/search", searchHandler)
	api.Handle("/api/v1/search/", searchHandler)
	api.Handle("/api/v1/export", export.NewHTTPHandler(a.Export, auth.Identity, cfg.Search.QueryTimeout*3, a.Logger))
	api.Handle("/graphql", graphql.NewHandler(gqlSchema, middleware.NewOperationLoggerExtension(a.Logger)))

	root := http.NewServeMux()
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		search.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/playground", playground.Handler("contentql playground", "/graphql"))
	root.Handle("/", auth.Middleware(middleware.DataLoaderMiddleware(a.Search)(api)))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})
	return corsHandler.Handler(middleware.LoggingMiddleware(a.Logger)(root)), nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
