// Package pullcmder provides the pull command: start a model download and
// follow its progress stream until a terminal state.
package pullcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dieharders/obrew-go/pkg/client"
	"github.com/dieharders/obrew-go/pkg/cliui"
	"github.com/dieharders/obrew-go/pkg/config"
	"github.com/dieharders/obrew-go/pkg/logger"
	"github.com/dieharders/obrew-go/pkg/progress"
)

type pullCommander struct {
	fileName string
	debug    bool

	cfg    *config.Config
	logger *zap.Logger
}

const pullLongDesc string = `Download a model from the backend's model hub.

The backend performs the download; pull subscribes to its progress stream
and renders live progress until the task completes, fails, or is cancelled.
Ctrl+C cancels the subscription without stopping the server-side download;
use the backend's cancel endpoint for that.

Examples:
  obrew pull TheBloke/Mistral-7B-GGUF
  obrew pull TheBloke/Mistral-7B-GGUF --file mistral-7b.Q4_K_M.gguf`

const pullShortDesc string = "Download a model with live progress"

func NewPullCmd() *cobra.Command {
	cmder := &pullCommander{}

	cmd := &cobra.Command{
		Use:   "pull <repo-id>",
		Short: pullShortDesc,
		Long:  pullLongDesc,
		Args:  cobra.ExactArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.fileName, "file", "f", "", "Specific file to download from the repo")

	return cmd
}

func (c *pullCommander) run(repoID string) error {
	c.logger = logger.New(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cli, err := client.New(
		client.Config{BaseURL: c.cfg.BaseURL()},
		client.WithLogger(c.logger),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := cli.Connect(ctx); err != nil {
		return err
	}
	defer cli.Disconnect()

	taskID, err := cli.StartDownload(ctx, client.DownloadRequest{
		RepoID:   repoID,
		FileName: c.fileName,
	})
	if err != nil {
		return err
	}

	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Task:"), cliui.DimStyle.Render(taskID))

	result := make(chan error, 1)
	sub, err := cli.SubscribeProgress(ctx, taskID, progress.Callbacks{
		OnProgress: func(rec progress.Record) {
			fmt.Printf("\r  %s", cliui.ProgressLine(rec))
		},
		OnComplete: func(filePath string) {
			fmt.Printf("\n  %s Downloaded to %s\n", cliui.SuccessMark, cliui.NameStyle.Render(filePath))
			result <- nil
		},
		OnError: func(message string) {
			fmt.Printf("\n  %s %s\n", cliui.FailMark, message)
			result <- fmt.Errorf("download failed: %s", message)
		},
		OnCancel: func() {
			fmt.Printf("\n  %s cancelled\n", cliui.DimStyle.Render("●"))
			result <- nil
		},
	})
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-interrupt:
			sub.Cancel()
		case err := <-result:
			<-sub.Done()
			return err
		}
	}
}
