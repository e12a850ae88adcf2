package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"minutes/internal/bootstrap"
	"minutes/internal/config"
	"minutes/internal/logging"
)

type commandContext struct {
	configFlag    *string
	pipelinesFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, pipelinesFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		pipelinesFlag: pipelinesFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) definitionsPath() string {
	if c.pipelinesFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.pipelinesFlag)
}

// cliLogger writes to stderr and the log file so stdout stays free for
// reports and JSON.
func (c *commandContext) cliLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.NewForConfig(cfg, "stderr")
}

// withApp builds the runtime for one command and closes it afterwards.
func (c *commandContext) withApp(requireKey bool, fn func(*bootstrap.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if requireKey {
		if err := cfg.RequireGeminiKey(); err != nil {
			return err
		}
	}
	logger, err := c.cliLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	app, err := bootstrap.Build(cfg, logger, bootstrap.Options{DefinitionsPath: c.definitionsPath()})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
