package apnsservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-apns-service/apnsservice/config"
	"github.com/tinywideclouds/go-apns-service/internal/api"
	"github.com/tinywideclouds/go-apns-service/internal/pipeline"
	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

const (
	// PushRoute is the relay endpoint.
	PushRoute = "/api/v1/push"
	// InvalidTokensRoute lists the registry; DELETE on a child path clears one token.
	InvalidTokensRoute = "/api/v1/invalid-tokens"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[relay.Request]
	logger          *slog.Logger
}

// New assembles the push relay service.
// consumer may be nil, in which case pushes are only accepted over HTTP.
// tokenStore may be nil, in which case the invalid token routes are not registered.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatcher api.PushDispatcher,
	tokenStore dispatch.InvalidTokenStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[relay.Request]
	if consumer != nil {
		processor := pipeline.NewProcessor(dispatcher, logger.With("component", "PushProcessor"))

		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.PushRequestTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API
	pushAPI := api.NewPushAPI(dispatcher, logger.With("component", "PushAPI"))

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST "+PushRoute, pushAPI.SendHandler)

	if tokenStore != nil {
		tokenAPI := api.NewTokenAPI(tokenStore, logger.With("component", "TokenAPI"))
		handle("GET "+InvalidTokensRoute, tokenAPI.ListInvalid)
		handle("DELETE "+InvalidTokensRoute+"/{token}", tokenAPI.ClearInvalid)
	}

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

// Start starts the ingestion pipeline, if any, marks the service ready and
// serves until shut down.
func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Push ingestion pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
