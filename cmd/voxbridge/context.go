package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxbridge/internal/app"
	"voxbridge/internal/config"
	"voxbridge/internal/logging"
)

// shutdownTimeout bounds how long a command waits for in-flight engine calls
// before leaving the cache behind.
const shutdownTimeout = 30 * time.Second

// commandContext loads config and logger at most once per invocation, and
// only for commands that need them.
type commandContext struct {
	configFlag *string
	appOptions []app.Option

	config      *config.Config
	configPath  string
	configFound bool
	logger      *slog.Logger
}

func newCommandContext(configFlag *string, opts ...app.Option) *commandContext {
	return &commandContext{configFlag: configFlag, appOptions: opts}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	var flagValue string
	if c.configFlag != nil {
		flagValue = strings.TrimSpace(*c.configFlag)
	}
	cfg, path, found, err := config.Load(flagValue)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}
	c.config, c.configPath, c.configFound = cfg, path, found
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

// withApp builds the conversion core, runs fn, and closes the core so the
// transcript cache is wiped before the command returns.
func (c *commandContext) withApp(fn func(*app.App) error) (err error) {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	core, err := app.New(c.config, logger, c.appOptions...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := core.Close(closeCtx); cerr != nil && err == nil {
			err = fmt.Errorf("shutdown: %w", cerr)
		}
	}()
	return fn(core)
}

// shouldSkipConfig reports whether cmd or an ancestor opts out of config
// loading through the skipConfigLoad annotation.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
