package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"intake/internal/blob"
	dochandler "intake/internal/documents/handler"
	docmetrics "intake/internal/documents/metrics"
	"intake/internal/documents/models"
	docservice "intake/internal/documents/service"
	docstore "intake/internal/documents/store"
	jwttoken "intake/internal/jwt_token"
	"intake/internal/platform/config"
	"intake/internal/platform/database"
	"intake/internal/platform/httpserver"
	"intake/internal/platform/logger"
	"intake/internal/platform/metrics"
	"intake/internal/platform/middleware"
	"intake/internal/platform/redis"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/audit/publisher"
	auditkafka "intake/pkg/platform/audit/store/kafka"
	auditmemory "intake/pkg/platform/audit/store/memory"
	auditpostgres "intake/pkg/platform/audit/store/postgres"
	"intake/pkg/platform/circuit"
	"intake/pkg/platform/httputil"
	"intake/pkg/platform/middleware/auth"
	"intake/pkg/platform/middleware/metadata"
	"intake/pkg/platform/middleware/requesttime"
)

const (
	requestTimeout  = 2 * time.Minute
	shutdownTimeout = 15 * time.Second

	auditTopicPartitions = 3
)

// main loads configuration and hands off to run. Business logic lives in
// internal/documents.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services; nil fields mean in-memory mode.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *auditkafka.Sink
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("failed to close postgres", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	policy, err := models.NewUploadPolicy(cfg.Upload.MaxBytes, cfg.Upload.AllowedTypes)
	if err != nil {
		return fmt.Errorf("upload policy: %w", err)
	}
	required, err := parseRequiredDocuments(cfg.RequiredDocuments)
	if err != nil {
		return err
	}

	docMetrics := docmetrics.New()
	httpMetrics := metrics.New()

	auditPublisher := newAuditPublisher(cfg, deps, log)
	// Close drains the async buffer; it runs after the server has stopped accepting requests.
	defer auditPublisher.Close()

	opts := []docservice.Option{
		docservice.WithLogger(log),
		docservice.WithAuditPublisher(auditPublisher),
		docservice.WithMetrics(docMetrics),
		docservice.WithUploadPolicy(policy),
		docservice.WithDefaultRequiredDocuments(required),
	}

	var store docservice.DocumentStore = docstore.NewInMemory()
	if deps.db != nil {
		store = docstore.NewPostgres(deps.db)
		opts = append(opts, docservice.WithTxRunner(newPostgresTx(deps.db)))
	}

	blobs := newBlobStorage(cfg, deps, log, docMetrics)

	verification := docservice.NewVerificationService(store, opts...)
	uploads := docservice.NewUploadService(store, blobs, verification, opts...)
	status := docservice.NewStatusService(store, opts...)
	summaries := docservice.NewSummaryService(store, opts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, "intake")
	documents := dochandler.New(verification, uploads, status, summaries, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.LatencyMiddleware(httpMetrics))

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity(jwttoken.NewJWTServiceAdapter(jwtService), log))
		documents.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r, httpserver.WithUploadWindow(requestTimeout))
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting intake server", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	db, err := database.Open(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if db != nil {
		deps.db = db
		if err := database.Migrate(ctx, db); err != nil {
			deps.close(log)
			return nil, err
		}
		log.Info("using postgres storage")
	} else {
		log.Info("DATABASE_URL not set, using in-memory storage")
	}

	if cfg.Blob.Backend == config.BlobBackendRedis {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			deps.close(log)
			return nil, err
		}
		deps.redis = client
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := auditkafka.New(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		deps.kafka = sink
		if err := sink.EnsureTopic(ctx, auditTopicPartitions, 1); err != nil {
			// A missing topic surfaces as produce errors, which the publisher logs.
			log.Warn("could not ensure kafka audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
		}
	}
	return deps, nil
}

func newAuditPublisher(cfg config.Server, deps *infra, log *slog.Logger) *publisher.Publisher {
	var store audit.ReadStore = auditmemory.NewInMemoryStore()
	if deps.db != nil {
		store = auditpostgres.New(deps.db)
	}
	opts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(cfg.Audit.Buffer),
	}
	if deps.kafka != nil {
		opts = append(opts, publisher.WithSinks(deps.kafka))
	}
	return publisher.NewPublisher(store, opts...)
}

func newBlobStorage(cfg config.Server, deps *infra, log *slog.Logger, m *docmetrics.Metrics) *blob.Guarded {
	var backend blob.Storage = blob.NewInMemory()
	if deps.redis != nil {
		backend = blob.NewRedis(deps.redis.Client, blob.WithTTL(cfg.Blob.TTL))
	}
	breaker := circuit.New("blob-storage",
		circuit.WithFailureThreshold(cfg.Blob.FailureThreshold),
		circuit.WithCooldown(cfg.Blob.Cooldown),
	)
	return blob.NewGuarded(backend, breaker,
		blob.WithLogger(log),
		blob.WithStateObserver(m.SetBlobCircuitOpen),
	)
}

func parseRequiredDocuments(raw []string) ([]models.DocumentType, error) {
	out := make([]models.DocumentType, 0, len(raw))
	for _, s := range raw {
		t, err := models.ParseDocumentType(s)
		if err != nil {
			return nil, fmt.Errorf("REQUIRED_DOCUMENT_TYPES: unknown type %q", s)
		}
		out = append(out, t)
	}
	return out, nil
}

func healthHandler(deps *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if deps.db != nil {
			checks["postgres"] = "ok"
			if err := deps.db.PingContext(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if deps.redis != nil {
			checks["redis"] = "ok"
			if err := deps.redis.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		if deps.kafka != nil {
			checks["kafka"] = "ok"
			if err := deps.kafka.Ping(ctx); err != nil {
				checks["kafka"] = err.Error()
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
