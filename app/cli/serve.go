package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"taskd/app/controllers"
	"taskd/app/routes"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(cfg)

			issues := cfg.Validate()
			if len(issues) > 0 {
				return fmt.Errorf("invalid configuration:\n  %s", strings.Join(issues, "\n  "))
			}

			ctx := cmd.Context()
			app, err := build(ctx, cfg, logger)
			if err != nil {
				return err
			}

			// Initialize the controller layer
			taskController := controllers.NewTaskController(app.sessions, logger)
			authController := controllers.NewAuthController(app.auth, app.sessions, logger)
			healthController := &controllers.HealthController{
				Checks:     app.checks,
				Prober:     app.repo,
				Collection: app.repo.Collection(),
				Logger:     logger,
			}

			// Setup HTTP server
			router := mux.NewRouter()
			routes.RegisterRoutes(router, routes.Controllers{
				Tasks:  taskController,
				Auth:   authController,
				Health: healthController,
			}, app.auth)

			server := &http.Server{
				Addr: cfg.Server.Addr,
				Handler: routes.NewHandler(router, routes.HandlerOptions{
					AllowedOrigins: cfg.Server.AllowedOrigins,
					AccessLog:      os.Stdout,
					Logger:         logger,
				}),
				ReadTimeout:  cfg.Server.ReadTimeout.Duration,
				WriteTimeout: cfg.Server.WriteTimeout.Duration,
			}

			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				_ = app.Close(ctx)
				return err
			}
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", "error", err)
				}
			}()
			logger.Info("server is running", "addr", ln.Addr().String(), "backend", cfg.Store.Backend)

			wait := gfshutdown.GracefulShutdown(
				context.Background(),
				cfg.Server.ShutdownTimeout.Duration,
				map[string]gfshutdown.Operation{
					"http-server": func(ctx context.Context) error {
						logger.Info("graceful shutdown initiated")
						return server.Shutdown(ctx)
					},
				},
			)

			exitCode := <-wait
			// Backends close after the server has drained its requests.
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
			defer cancel()
			if err := app.Close(closeCtx); err != nil {
				logger.Warn("closing backends", "error", err)
			}
			if exitCode != 0 {
				return fmt.Errorf("shutdown finished with exit code %d", exitCode)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
