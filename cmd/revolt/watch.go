package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	revolt "github.com/mafineeek/revolt.go"
)

var watchMetricsAddr string

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the push stream and print cache events",
	Long:  "Connect to the push stream, apply server events to the local cache, and print every cache event until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		client := getClient(revolt.WithMetrics(reg))
		client.OnAny(printEvent)

		if watchMetricsAddr != "" {
			srv := &http.Server{
				Addr:              watchMetricsAddr,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
			defer srv.Close()
		}

		stream := client.Stream(revolt.StreamConfig{AutoReconnect: true})
		stream.OnReady(func() {
			fmt.Printf("ready: %d channels cached\n", len(client.Registry().Channels()))
		})
		stream.OnError(func(err error) {
			fmt.Fprintf(os.Stderr, "stream error: %v\n", err)
		})
		stream.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Fprintf(os.Stderr, "reconnecting (attempt %d) in %s\n", attempt, delay)
		})

		if err := stream.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		<-ctx.Done()
		stream.Disconnect()
		return nil
	},
}

func printEvent(ev revolt.Event) {
	switch e := ev.(type) {
	case revolt.ChannelCreated:
		fmt.Printf("%-17s %s (%s)\n", e.Kind(), e.Channel.ID(), e.Channel.Type())
	case revolt.ChannelMutated:
		fmt.Printf("%-17s %s\n", e.Kind(), e.Channel.ID())
	case revolt.ChannelDeleted:
		fmt.Printf("%-17s %s\n", e.Kind(), e.ID)
	case revolt.MessageCreated:
		fmt.Printf("%-17s %s in %s: %s\n", e.Kind(), e.Message.ID, e.Message.ChannelID, e.Message.Content())
	case revolt.MessageSent:
		fmt.Printf("%-17s %s in %s\n", e.Kind(), e.Message.ID, e.Message.ChannelID)
	}
}
