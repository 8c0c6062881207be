package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/agent-racer/sessionwatch/internal/config"
	"github.com/agent-racer/sessionwatch/internal/monitor"
	"github.com/agent-racer/sessionwatch/internal/session"
	"github.com/agent-racer/sessionwatch/internal/ws"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		mockMode bool
		host     string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live snapshots over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg, mockMode)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&mockMode, "mock", false, "monitor synthetic sessions instead of real ones")
	flags.StringVar(&host, "host", "", "listen host (overrides server.host)")
	flags.IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, mockMode bool) error {
	logger := slog.Default()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	root := cfg.Monitor.ProjectsDir
	if mockMode {
		forMock(cfg)
		mockRoot, cleanup, err := startMock(ctx, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		root = mockRoot
	}

	token := cfg.Server.AuthToken
	if token == "" && !isLoopback(cfg.Server.Host) {
		generated, err := config.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
		logger.Warn("no auth_token set for a non-loopback host, generated one",
			"host", cfg.Server.Host, "token", token)
	}

	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(0, cfg.Privacy.NewPrivacyFilter(), logger)
	defer broadcaster.Close()

	mon := monitor.NewMonitor(monitorConfig(cfg, root), newScanner(cfg, logger), store, broadcaster, logger)
	server := ws.NewServer(mon, broadcaster, ws.ServerOptions{
		AuthToken:      token,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	go mon.Start(ctx)
	go reloadOnHangup(ctx, &reloader{
		current:     cfg,
		root:        root,
		mock:        mockMode,
		monitor:     mon,
		broadcaster: broadcaster,
		logger:      logger,
		load:        loadConfig,
	})

	return ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), logger)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// reloader applies a re-read config file to a running server. The projects
// root, listen address and auth token keep their startup values.
type reloader struct {
	current     *config.Config
	root        string
	mock        bool
	monitor     *monitor.Monitor
	broadcaster *ws.Broadcaster
	logger      *slog.Logger
	load        func() (*config.Config, error)
}

func reloadOnHangup(ctx context.Context, r *reloader) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			r.reload()
		}
	}
}

// reload loads the config and applies it when it differs from the current
// one. It returns the applied changes.
func (r *reloader) reload() []string {
	next, err := r.load()
	if err != nil {
		r.logger.Error("config reload failed", "error", err)
		return nil
	}
	if r.mock {
		forMock(next)
	}

	changes := config.Diff(r.current, next)
	if len(changes) == 0 {
		r.logger.Info("config reloaded, nothing changed")
		return nil
	}
	for _, c := range changes {
		r.logger.Info("config changed", "change", c)
	}

	r.monitor.SetScanner(newScanner(next, r.logger))
	r.monitor.SetConfig(monitorConfig(next, r.root))
	r.broadcaster.SetPrivacy(next.Privacy.NewPrivacyFilter())
	r.current = next
	return changes
}
