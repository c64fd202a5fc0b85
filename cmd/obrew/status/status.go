// Package statuscmder provides the status command: a one-shot backend
// health check on a bounded timeout.
package statuscmder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dieharders/obrew-go/pkg/client"
	"github.com/dieharders/obrew-go/pkg/cliui"
	"github.com/dieharders/obrew-go/pkg/config"
	"github.com/dieharders/obrew-go/pkg/logger"
)

type statusCommander struct {
	debug bool

	cfg *config.Config
}

const statusShortDesc string = "Check backend connectivity"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	return cmd
}

func (c *statusCommander) run() error {
	log := logger.New(c.debug)
	defer func() { _ = log.Sync() }()

	cli, err := client.New(
		client.Config{BaseURL: c.cfg.BaseURL()},
		client.WithLogger(log),
	)
	if err != nil {
		return err
	}

	timeout := time.Duration(c.cfg.Client.HealthTimeoutSeconds) * time.Second
	return cliui.Step(os.Stdout, fmt.Sprintf("Pinging %s", c.cfg.BaseURL()), func() error {
		return cli.Health(context.Background(), timeout)
	})
}
