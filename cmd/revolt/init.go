package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initBot bool

func init() {
	initCmd.Flags().BoolVar(&initBot, "bot", false, "the token is a bot token")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <token>",
	Short: "Store a token in ~/.revolt/config.toml",
	Long:  "Initialize the CLI by storing your session or bot token in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = args[0]
		cfg.Auth.Bot = initBot

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Token saved to %s\n", path)
		return nil
	},
}
