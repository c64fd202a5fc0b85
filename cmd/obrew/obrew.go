// Package obrewcmder
package obrewcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/dieharders/obrew-go/cmd/obrew/chat"
	modelscmder "github.com/dieharders/obrew-go/cmd/obrew/models"
	pullcmder "github.com/dieharders/obrew-go/cmd/obrew/pull"
	statuscmder "github.com/dieharders/obrew-go/cmd/obrew/status"
	versioncmder "github.com/dieharders/obrew-go/cmd/version"
)

const obrewLongDesc string = `Obrew is a client for a local inference and model-management backend.

Talk to the backend using:
  obrew chat       Interactive streaming chat
  obrew pull       Download a model with live progress
  obrew models     List installed models
  obrew status     Check backend connectivity`

const obrewShortDesc string = "Obrew - inference backend client"

func NewObrewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obrew",
		Short: obrewShortDesc,
		Long:  obrewLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .obrew/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(pullcmder.NewPullCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
