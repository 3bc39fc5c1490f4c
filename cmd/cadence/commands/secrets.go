package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/secrets"
)

// DefaultImportPrefix selects which environment variables `secrets
// import` picks up.
const DefaultImportPrefix = "SECRET_"

// SecretsCmd groups the operator surface over the encrypted store.
var SecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted secrets store",
	Long: `Manage the encrypted secrets store.

Secrets are stored AES-256-GCM encrypted on disk and referenced from
job configurations as "secret:KEY" value expressions.

Examples:
  cadence secrets set API_KEY hunter2hunter2
  cadence secrets get API_KEY
  cadence secrets import          # imports SECRET_* environment variables
  cadence secrets backup /srv/backups/secrets.enc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func storeFromFlags(cmd *cobra.Command) *secrets.Store {
	secretsFile, _ := cmd.Flags().GetString("secrets-file")
	keyFile, _ := cmd.Flags().GetString("key-file")
	return secrets.NewStore(secretsFile, keyFile, logger.Logger)
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storeFromFlags(cmd).Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Secret '%s' stored\n", args[0])
		return nil
	},
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a secret, masked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, ok, err := storeFromFlags(cmd).Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Secret '%s' not found\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("Secret '%s': %s\n", args[0], secrets.Mask(value))
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := storeFromFlags(cmd).Delete(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(os.Stderr, "Secret '%s' not found\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("Secret '%s' deleted\n", args[0])
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := storeFromFlags(cmd).Keys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var secretsExistsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "Check whether a secret is stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := storeFromFlags(cmd).Exists(args[0])
		if err != nil {
			return err
		}
		if !ok {
			os.Exit(1)
		}
		return nil
	},
}

var secretsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import SECRET_-prefixed environment variables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := storeFromFlags(cmd).ImportFromEnv(DefaultImportPrefix)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d secrets\n", count)
		return nil
	},
}

var secretsBackupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Copy the encrypted store to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wrote, err := storeFromFlags(cmd).Backup(args[0])
		if err != nil {
			return err
		}
		if !wrote {
			fmt.Fprintln(os.Stderr, "No secrets store to back up")
			os.Exit(1)
		}
		fmt.Printf("Secrets backed up to %s\n", args[0])
		return nil
	},
}

func init() {
	SecretsCmd.PersistentFlags().StringP("secrets-file", "f", "./secrets.json.enc", "Encrypted secrets file")
	SecretsCmd.PersistentFlags().StringP("key-file", "k", "./secrets.key", "Encryption key file")

	SecretsCmd.AddCommand(secretsSetCmd)
	SecretsCmd.AddCommand(secretsGetCmd)
	SecretsCmd.AddCommand(secretsDeleteCmd)
	SecretsCmd.AddCommand(secretsListCmd)
	SecretsCmd.AddCommand(secretsExistsCmd)
	SecretsCmd.AddCommand(secretsImportCmd)
	SecretsCmd.AddCommand(secretsBackupCmd)
}
