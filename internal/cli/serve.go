package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codepilot/internal/api"
	"codepilot/internal/auth"
	"codepilot/internal/logger"
	"codepilot/internal/service/assistant"
	"codepilot/internal/service/metering"
	"codepilot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfgPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the HTTP API until interrupted, then drain in-flight requests and stop the chat workers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.BasicConfig.ServerAddress = addr
			}

			ln, err := net.Listen("tcp", a.cfg.BasicConfig.ServerAddress)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return a.serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides basic_config.server_address")

	return cmd
}

// server is the wired HTTP stack.
type server struct {
	router  *gin.Engine
	auth    *auth.Service
	workers *worker.Manager
}

func (a *app) newServer() *server {
	basic := a.cfg.BasicConfig
	authService := auth.NewService(a.db, a.cache, time.Duration(basic.TokenTTL)*time.Hour,
		auth.WithIdentityHeaders(basic.IdentityHeader, basic.EmailHeader, a.workspace),
	)
	dispatcher := assistant.NewDispatcher()
	gate := metering.NewGate(a.workspace, dispatcher)
	workers := worker.NewManager(gate, worker.DispatcherConfig{
		MinWorkers:  basic.MinWorkers,
		MaxWorkers:  basic.MaxWorkers,
		QueueSize:   basic.QueueSize,
		IdleTimeout: time.Duration(basic.WorkerIdleTimeout) * time.Minute,
	})

	if gin.Mode() != gin.TestMode && a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(), api.CORS(basic.CORSOrigins))
	api.NewHandler(a.workspace, dispatcher, authService, workers).RegisterRoutes(router)

	return &server{router: router, auth: authService, workers: workers}
}

// serve runs the API on ln until ctx is cancelled or the server fails.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	s := a.newServer()
	defer s.workers.Close()
	s.auth.StartTokenSweeper(ctx, auth.DefaultTokenSweepInterval)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoWithFields("server listening", logger.Fields{
			"addr":     ln.Addr().String(),
			"database": a.dbType,
			"workers":  s.workers.Workers(),
		})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Log.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
