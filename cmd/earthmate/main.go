// EarthMate - carbon footprint action plans and assistant chat.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/earthmate/earthmate/internal/config"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "earthmate",
	Short: "EarthMate - your partner for the planet",
	Long: `EarthMate estimates your yearly carbon footprint from a few lifestyle
answers, suggests how to reduce it, and lets you ask an AI assistant follow-up
questions.

Run "earthmate tui" for the terminal interface or "earthmate serve" for the
companion server used by browser clients.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil {
			slog.Debug("No .env file found, using environment variables", "path", envFile)
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(serveCmd, tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
