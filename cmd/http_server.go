package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/employee-management/api"
	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/auth"
	"github.com/frahmantamala/employee-management/internal/dashboard"
	"github.com/frahmantamala/employee-management/internal/department"
	"github.com/frahmantamala/employee-management/internal/role"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/internal/transport/middleware"
	"github.com/frahmantamala/employee-management/internal/transport/rest"
	"github.com/frahmantamala/employee-management/internal/user"
)

var runSweeper bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&runSweeper, "sweeper", true, "run the lifecycle sweeps in this process")
}

func startHTTPServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if _, err := api.Load(ctx); err != nil {
		deps.Logger.Error("invalid openapi document", "error", err)
		os.Exit(1)
	}
	if err := deps.startForwarder(); err != nil {
		deps.Logger.Error("audit forwarding disabled", "error", err)
	}

	limiter := middleware.NewIPRateLimiter(deps.Config.Security.LoginAttemptsPerMin)
	router := setupRoutes(deps, limiter)

	go deps.Sessions.Run(ctx)
	go runLimiterCleanup(ctx, limiter, deps.Logger)
	if runSweeper {
		go user.NewSweeper(deps.Users, deps.Config.Lifecycle.SweepInterval, deps.Logger).Run(ctx)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies, limiter *middleware.IPRateLimiter) *chi.Mux {
	base := transport.NewBaseHandler(deps.Logger)
	authHandler := auth.NewHandler(base, deps.Auth)

	dispatcher := rest.NewDispatcher(base, authHandler.Middleware, access.NewAuthorization(deps.Evaluator, deps.Logger))
	rest.RegisterEndpoints(dispatcher, rest.Handlers{
		Auth:         authHandler,
		Users:        user.NewHandler(base, deps.Users),
		Departments:  department.NewHandler(base, deps.Departments),
		Roles:        role.NewHandler(base, deps.Roles),
		Audit:        audit.NewHandler(base, deps.Audit),
		Dashboard:    dashboard.NewHandler(base, deps.Dashboard),
		Navigation:   rest.NewNavigationHandler(base, deps.Evaluator),
		LoginLimiter: limiter,
	})

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.RouterConfig{
		AllowedOrigins: deps.Config.Server.AllowedOrigins,
		MetricsPath:    deps.Config.Observability.Metrics.Path,
		OpenAPI:        api.Document,
	}, rest.NewHealthHandler(base, deps.SQL, deps.Redis), dispatcher, deps.Metrics, deps.Logger)
	return router
}

func runLimiterCleanup(ctx context.Context, limiter *middleware.IPRateLimiter, lg *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Cleanup(); n > 0 {
				lg.Debug("login limiter forgot idle clients", "count", n)
			}
		}
	}
}
