// Package cli implements the wirechat command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd builds the wirechat command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wirechat",
		Short:         "Terminal client for wirechat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newLoginCmd())
	root.AddCommand(newChatCmd())
	return root
}
