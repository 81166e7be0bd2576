package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configDir string
	envFile   string
	rootCmd   *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "pixctl",
		Short: "PIX multi-acquirer gateway and ledger reconciler",
		Long: `pixctl creates PIX charges through spedpay, inter or ativus, keeps the local
ledger in step with the acquirers and backfills records the ledger never saw.

Every command is a single stateless invocation and prints JSON.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(envFile); err == nil {
				return godotenv.Load(envFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded when present")
}

func Execute() error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(reconcileCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
