package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlpoint/connector/internal/cli/prompt"
	"github.com/crawlpoint/connector/pkg/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Encode and decode sensitive configuration values",
	Long: `Encode sensitive configuration values (session secrets, S3
credentials) for storage in the configuration file, or decode stored
values for inspection.

The encoding obfuscates values against casual disclosure; it is not
encryption. Keep configuration files access-controlled regardless.`,
}

var secretEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a sensitive value for the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := prompt.Secret("Value to encode")
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), secrets.NewObfuscated().Encode(value))
		return nil
	},
}

var secretDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a stored configuration value",
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, err := prompt.Input("Encoded value")
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}

		value, err := secrets.NewObfuscated().Decode(encoded)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretEncodeCmd)
	secretCmd.AddCommand(secretDecodeCmd)
}
