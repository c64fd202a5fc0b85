// Package chatcmder provides the chat command for interactive streaming
// chat against the obrew backend.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dieharders/obrew-go/pkg/client"
	"github.com/dieharders/obrew-go/pkg/cliui"
	"github.com/dieharders/obrew-go/pkg/config"
	"github.com/dieharders/obrew-go/pkg/logger"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	model  string
	render bool
	debug  bool

	cfg    *config.Config
	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session against the obrew backend.

Messages stream token by token as the backend generates them. With --render,
each full reply is re-printed as rendered markdown once the stream finishes.

Examples:
  obrew chat --model llama3.2
  obrew chat --model llama3.2 --render`

const chatShortDesc string = "Interactive streaming chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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

	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name to chat with")
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Render finished replies as markdown")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.New(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("chat requires an interactive terminal")
	}

	cli, err := client.New(
		client.Config{BaseURL: c.cfg.BaseURL()},
		client.WithLogger(c.logger),
	)
	if err != nil {
		return err
	}

	// Ctrl+C cancels the in-flight completion and ends the session so the
	// deferred Disconnect still runs.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := cliui.Step(os.Stdout, fmt.Sprintf("Connecting to %s", c.cfg.BaseURL()), func() error {
		return cli.Connect(ctx)
	}); err != nil {
		return err
	}
	defer cli.Disconnect()

	fmt.Println()
	if c.model != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(c.model))
	}
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	var messages []client.ChatMessage
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			break
		}

		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		messages = append(messages, client.ChatMessage{Role: "user", Content: input})

		reply, err := c.sendAndStream(ctx, cli, messages)
		if err != nil {
			// Drop the failed user message so it can be retried.
			messages = messages[:len(messages)-1]

			if errors.Is(err, context.Canceled) {
				fmt.Printf("\n  %s\n", cliui.DimStyle.Render("cancelled"))
				break
			}

			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		messages = append(messages, client.ChatMessage{Role: "assistant", Content: reply})

		if c.render {
			rendered, err := cliui.RenderMarkdown(reply)
			if err == nil {
				fmt.Println()
				fmt.Print(rendered)
			}
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// sendAndStream sends the conversation and prints tokens as they arrive.
// Returns the full assistant reply text.
func (c *chatCommander) sendAndStream(ctx context.Context, cli *client.Client, messages []client.ChatMessage) (string, error) {
	fmt.Print(assistantPrompt)

	req := &client.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}

	reply, err := cli.StreamCompletion(ctx, req, func(token string) {
		fmt.Print(token)
	})
	if err != nil {
		return "", err
	}

	return reply, nil
}
