// Package modelscmder provides the models command for listing installed
// models on the backend.
package modelscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dieharders/obrew-go/pkg/client"
	"github.com/dieharders/obrew-go/pkg/cliui"
	"github.com/dieharders/obrew-go/pkg/config"
	"github.com/dieharders/obrew-go/pkg/logger"
)

type modelsCommander struct {
	debug bool

	cfg *config.Config
}

const modelsShortDesc string = "List installed models"

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
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

func (c *modelsCommander) run() error {
	log := logger.New(c.debug)
	defer func() { _ = log.Sync() }()

	cli, err := client.New(
		client.Config{BaseURL: c.cfg.BaseURL()},
		client.WithLogger(log),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := cli.Connect(ctx); err != nil {
		return err
	}
	defer cli.Disconnect()

	models, err := cli.InstalledModels(ctx)
	if err != nil {
		return err
	}

	if len(models) == 0 {
		fmt.Printf("  %s\n", cliui.DimStyle.Render("No models installed."))
		return nil
	}

	fmt.Println()
	for _, model := range models {
		marker := " "
		if model.Loaded {
			marker = cliui.SuccessMark
		}

		line := fmt.Sprintf("  %s %s", marker, cliui.NameStyle.Render(model.ID))
		if model.SizeMB > 0 {
			line += cliui.DimStyle.Render(fmt.Sprintf("  (%s)", cliui.FormatBytes(model.SizeMB*1024*1024)))
		}
		fmt.Println(line)
	}
	fmt.Println()

	return nil
}
