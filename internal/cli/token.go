package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shanehull/prospector/internal/secrets"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the API token kept in the OS keychain",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the API token (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no token given")
			}
			token = strings.TrimSpace(line)
		}
		account := secrets.APIKeyringAccount(cfg.API.KeyringAccount, cfg.API.BaseURL)
		if err := secrets.SetAPIToken(account, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token stored for %s.\n", account)
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the API token from the keychain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		account := secrets.APIKeyringAccount(cfg.API.KeyringAccount, cfg.API.BaseURL)
		if err := secrets.DeleteAPIToken(account); err != nil {
			return fmt.Errorf("delete token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token removed for %s.\n", account)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenDeleteCmd)
}
