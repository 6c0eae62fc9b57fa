package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	revolt "github.com/mafineeek/revolt.go"
)

const tokenEnv = "REVOLT_TOKEN"

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// resolveToken prefers REVOLT_TOKEN over the stored token.
func resolveToken(cfg *Config) string {
	if tok := strings.TrimSpace(os.Getenv(tokenEnv)); tok != "" {
		return tok
	}
	return cfg.Auth.Token
}

func clientOptions(cfg *Config) []revolt.ClientOption {
	opts := []revolt.ClientOption{
		revolt.WithLogger(newLogger()),
		revolt.WithBot(cfg.Auth.Bot),
	}
	if cfg.Default.APIURL != "" {
		opts = append(opts, revolt.WithBaseURL(cfg.Default.APIURL))
	}
	if cfg.Default.WSURL != "" {
		opts = append(opts, revolt.WithWebSocketURL(cfg.Default.WSURL))
	}
	return opts
}

// getClient creates a client from the stored config, exiting when no token
// is available.
func getClient(extra ...revolt.ClientOption) *revolt.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	token := resolveToken(cfg)
	if token == "" {
		fmt.Fprintf(os.Stderr, "No token. Run 'revolt init <token>' or set %s.\n", tokenEnv)
		os.Exit(1)
	}
	return revolt.NewClient(token, append(clientOptions(cfg), extra...)...)
}

// maskToken shows the first 4 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
