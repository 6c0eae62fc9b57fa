package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	revolt "github.com/mafineeek/revolt.go"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  API URL:   %s\n", valueOrDefault(cfg.Default.APIURL, revolt.DefaultBaseURL+" (default)"))
		fmt.Printf("  WS URL:    %s\n", valueOrDefault(cfg.Default.WSURL, revolt.DefaultWebSocketURL+" (default)"))

		fmt.Println()
		fmt.Println("Auth:")
		token := resolveToken(cfg)
		switch {
		case token == "":
			fmt.Println("  Token:     (not set)")
		case os.Getenv(tokenEnv) != "":
			fmt.Printf("  Token:     %s (from %s)\n", maskToken(token), tokenEnv)
		default:
			fmt.Printf("  Token:     %s\n", maskToken(token))
		}
		if cfg.Auth.Bot {
			fmt.Println("  Kind:      bot")
		} else {
			fmt.Println("  Kind:      session")
		}
		return nil
	},
}
