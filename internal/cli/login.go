package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/api"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain and persist a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New("warn")
			cfg, _, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				fmt.Fprint(cmd.OutOrStdout(), "username: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}

			fmt.Fprint(cmd.OutOrStdout(), "password: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimSpace(line)

			token, err := api.Login(cmd.Context(), cfg.ServerURL, username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			if err := os.WriteFile(cfg.TokenPath, []byte(token), 0o600); err != nil {
				return fmt.Errorf("write token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", cfg.TokenPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	return cmd
}
