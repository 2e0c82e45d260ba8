package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"markov-go/internal/config"
	"markov-go/internal/controller"
	"markov-go/internal/service"
	"markov-go/pkg/mcp"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server owns the generator service and the HTTP surface built over it
type Server struct {
	cfg              *config.Config
	generatorService *service.GeneratorService
	httpServer       *http.Server
	logger           *zap.Logger
}

// NewServer builds the service, controllers, optional MCP server and router from cfg
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	generatorService, err := service.NewGeneratorServiceFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator service: %w", err)
	}

	corpusController := controller.NewCorpusController(generatorService, logger)

	var mcpServer *mcp.GenerationServer
	if cfg.Mcp.Enabled {
		mcpServer = mcp.NewGenerationServer(generatorService, cfg.Mcp, logger)
		logger.Info("MCP tools enabled", zap.String("name", cfg.Mcp.Name), zap.String("version", cfg.Mcp.Version))
	}

	router := SetupRouter(corpusController, mcpServer, cfg.App.ReleaseMode, logger)

	return &Server{
		cfg:              cfg,
		generatorService: generatorService,
		httpServer: &http.Server{
			Addr:    cfg.App.GetAddress(),
			Handler: router,
		},
		logger: logger,
	}, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GeneratorService returns the service behind the HTTP surface
func (s *Server) GeneratorService() *service.GeneratorService {
	return s.generatorService
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return s.Close()
}

// Close releases the index store
func (s *Server) Close() error {
	return s.generatorService.Close()
}
