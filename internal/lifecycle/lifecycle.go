// Package lifecycle manages the smbcored process's PID file, shutdown
// hooks, and OS signal handling so cmd/smbcored doesn't have to.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/smbcore/smbd/internal/serrors"
)

var (
	mu            sync.Mutex
	shutdownHooks []func()
	cancel        context.CancelFunc
)

// RegisterShutdownHook queues a cleanup function to run once, in
// registration order, when a shutdown signal arrives.
func RegisterShutdownHook(hook func()) {
	mu.Lock()
	defer mu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

// RegisterContextCanceller lets HandleSignals cancel the process's root
// context before running shutdown hooks.
func RegisterContextCanceller(c context.CancelFunc) {
	mu.Lock()
	defer mu.Unlock()
	cancel = c
}

// HandleSignals blocks until SIGINT/SIGTERM, then cancels the registered
// context and runs shutdown hooks in order. It returns instead of calling
// os.Exit so the caller controls the process exit code. ctx.Done also
// unblocks it, for callers that cancel the context some other way.
func HandleSignals(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-ctx.Done():
		return
	}

	mu.Lock()
	c := cancel
	hooks := make([]func(), len(shutdownHooks))
	copy(hooks, shutdownHooks)
	mu.Unlock()

	if c != nil {
		c()
	}
	for _, hook := range hooks {
		hook()
	}
}

// EnsureSingleInstance writes pidPath with the current process id,
// refusing if a live process already holds it. A stale file (pointing at
// a pid that no longer exists) is reclaimed silently. Registers its own
// cleanup shutdown hook.
func EnsureSingleInstance(pidPath string) error {
	if pidPath == "" {
		return serrors.New(serrors.ErrInvalidConfiguration, "empty pid file path")
	}

	if data, err := os.ReadFile(pidPath); err == nil {
		content := strings.TrimSpace(string(data))
		if content != "" {
			if pid, err := strconv.Atoi(content); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return serrors.NewWithPath(serrors.ErrInvalidConfiguration,
							"another instance is already running (pid "+strconv.Itoa(pid)+")", pidPath)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return serrors.NewWithPath(serrors.ErrInvalidConfiguration, "writing pid file: "+err.Error(), pidPath)
	}

	RegisterShutdownHook(func() { _ = os.Remove(pidPath) })
	return nil
}
