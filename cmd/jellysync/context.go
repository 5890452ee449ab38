package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"jellysync/internal/config"
	"jellysync/internal/logging"
	"jellysync/internal/services"
	"jellysync/internal/services/jellyfin"
	"jellysync/internal/state"
)

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if dir := strings.TrimSpace(c.flags.mediaDir); dir != "" {
			expanded, err := config.ExpandPath(dir)
			if err != nil {
				c.configErr = fmt.Errorf("resolve --media-dir: %w", err)
				return
			}
			cfg.Paths.MediaDir = expanded
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// log returns the invocation logger; it falls back to a no-op logger when the
// configured one cannot be built so commands still produce their output.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		logger, err := logging.NewFromConfig(cfg, c.flags.logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) server() (config.Server, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return config.Server{}, err
	}
	return cfg.Server(config.Overrides{
		Profile: c.flags.profile,
		URL:     c.flags.host,
		UserID:  c.flags.userID,
		Token:   c.flags.token,
	})
}

func (c *commandContext) client() (*jellyfin.Client, error) {
	server, err := c.server()
	if err != nil {
		return nil, err
	}
	return jellyfin.New(server, c.config.RequestTimeout())
}

// withIndex opens the state index for the duration of fn.
func (c *commandContext) withIndex(fn func(*state.Index) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	idx, err := state.Open(cfg)
	if err != nil {
		return fmt.Errorf("open state index: %w", err)
	}
	defer idx.Close()
	return fn(idx)
}

// withLock holds the invocation lock on the state directory for fn.
func (c *commandContext) withLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := state.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			c.log().Warn("release invocation lock", logging.Error(err))
		}
	}()
	return fn()
}

// commandRunContext derives a cancellable context tagged with a fresh
// correlation id. SIGINT and SIGTERM cancel it.
func commandRunContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return services.WithRequestID(ctx, uuid.NewString()), stop
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
