package commands

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"

	"github.com/smbcore/smbd/internal/config"
	"github.com/smbcore/smbd/internal/filestate"
	"github.com/smbcore/smbd/internal/lifecycle"
	"github.com/smbcore/smbd/internal/logger"
	"github.com/smbcore/smbd/internal/passthru"
	"github.com/smbcore/smbd/internal/server"
)

var (
	detach  bool
	pidFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session and shared-state engine",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&detach, "detach", "d", false, "run as a background daemon")
	serveCmd.Flags().StringVar(&pidFile, "pid-file", "", "path to PID file (with --detach the default is $XDG_STATE_HOME/smbcored/smbcored.pid; in the foreground no PID file is written unless this is set)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if detach {
		return runDetached()
	}
	return startServer()
}

func runDetached() error {
	stateDir, err := stateDirectory()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "smbcored.pid")
	}

	ctx := &daemon.Context{
		PidFileName: pidPath,
		PidFilePerm: 0o644,
		LogFileName: filepath.Join(stateDir, "smbcored.log"),
		LogFilePerm: 0o640,
		WorkDir:     "/",
		Umask:       0o027,
		Args:        os.Args,
	}

	d, err := ctx.Reborn()
	if err != nil {
		return err
	}
	if d != nil {
		// Parent process: the child has been forked off, nothing more to do.
		return nil
	}
	defer ctx.Release()

	pidFile = pidPath
	return startServer()
}

func stateDirectory() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "smbcored"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "smbcored"), nil
}

func startServer() error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.ToLoggerConfig()); err != nil {
		return err
	}

	if pidFile != "" {
		if err := lifecycle.EnsureSingleInstance(pidFile); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lifecycle.RegisterContextCanceller(cancel)

	cache, err := filestate.NewCache(cfg.FileStateCache.ToCacheConfig())
	if err != nil {
		return err
	}
	if err := cache.Start(); err != nil {
		return err
	}
	lifecycle.RegisterShutdownHook(func() {
		if err := cache.Shutdown(); err != nil {
			logger.Error("file-state cache shutdown error", "error", err)
		}
	})

	pool := passthru.NewAuthorityPool(cfg.Passthru.ToAuthorityPoolConfig())
	if err := pool.Start(); err != nil {
		return err
	}
	lifecycle.RegisterShutdownHook(func() {
		if err := pool.Shutdown(); err != nil {
			logger.Error("authority pool shutdown error", "error", err)
		}
	})
	authenticator := passthru.NewAuthenticator(cfg.Passthru.ToAuthenticatorConfig(pool))

	registry := prometheus.NewRegistry()
	srv := server.New(cfg.NetworkServer.ToServerConfig())
	server.NewMetrics(registry, srv.Sessions(), cache)

	for _, addr := range cfg.NetworkServer.BindAddresses {
		handler := server.NewTCPSessionHandler(server.TCPSessionHandlerConfig{
			HandlerName:     "tcp-" + addr,
			ProtocolName:    cfg.NetworkServer.ProtocolName,
			BindAddress:     addr,
			ShutdownTimeout: time.Duration(cfg.NetworkServer.ShutdownTimeoutMS) * time.Millisecond,
			ConnHandler:     connHandler(authenticator),
		})
		srv.Handlers().Add(handler)
	}

	if err := srv.StartServer(ctx); err != nil {
		return err
	}
	lifecycle.RegisterShutdownHook(func() {
		if err := srv.ShutdownServer(false); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		lifecycle.RegisterShutdownHook(func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		})
		logger.Info("metrics endpoint listening", "address", cfg.Metrics.ListenAddress)
	}

	logger.Info("smbcored started", "protocol", cfg.NetworkServer.ProtocolName, "bind_addresses", cfg.NetworkServer.BindAddresses)
	lifecycle.HandleSignals(ctx)
	logger.Info("smbcored stopped")
	return nil
}

// connHandler returns the per-connection entry point bound to each
// TCPSessionHandler. Actual SMB2 wire decoding is a protocol-decoder
// concern outside this engine; this placeholder demonstrates the
// session lifecycle (creation through close) and keeps the connection
// open until the peer disconnects or the server shuts down, so the
// runtime primitives can be smoke-tested end to end without a full
// protocol stack attached.
func connHandler(_ *passthru.Authenticator) server.TCPConnFunc {
	return func(ctx context.Context, sess *server.SrvSession, conn net.Conn) {
		logger.Info("session connected",
			"session_id", sess.SessionID(), "remote_addr", sess.RemoteAddr())

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = io.Copy(io.Discard, conn)
		}()

		select {
		case <-ctx.Done():
		case <-done:
		}
	}
}
