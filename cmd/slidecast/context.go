package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/layout"
	"slidecast/internal/logging"
	"slidecast/internal/notify"
	"slidecast/internal/pipeline"
	"slidecast/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the store for one command invocation and closes it after.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// withService builds the deck/job submission service around an open store.
func (c *commandContext) withService(fn func(*config.Config, *store.Store, *api.Service) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		svc := api.NewService(cfg, st, layout.New(cfg), pipeline.NewAdmission(cfg, st), notify.NewService(cfg), logging.NewNop())
		return fn(cfg, st, svc)
	})
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
