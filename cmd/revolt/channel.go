package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	revolt "github.com/mafineeek/revolt.go"
)

var (
	channelJSONOutput bool

	// channel send
	channelSendNonce string
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Channel commands",
	Long:  "Fetch, message and delete channels through the entity cache.",
}

// ============================================================================
// channel get
// ============================================================================

var channelGetCmd = &cobra.Command{
	Use:   "get <channel-id>",
	Short: "Fetch a channel and resolve its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ch, err := client.FetchChannel(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}

		if channelJSONOutput {
			return printJSON(ch.Raw())
		}
		printChannel(ch)
		return nil
	},
}

func printChannel(ch revolt.Channel) {
	fmt.Printf("ID:          %s\n", ch.ID())
	fmt.Printf("Type:        %s\n", ch.Type())
	switch c := ch.(type) {
	case *revolt.SavedMessagesChannel:
		fmt.Printf("User:        %s\n", c.UserID())
	case *revolt.DirectMessageChannel:
		fmt.Printf("Recipients:  %s\n", formatUsers(c.Recipients()))
	case *revolt.GroupChannel:
		fmt.Printf("Name:        %s\n", c.Name())
		if c.Description() != "" {
			fmt.Printf("Description: %s\n", c.Description())
		}
		if owner := c.Owner(); owner != nil {
			fmt.Printf("Owner:       %s (%s)\n", owner.Username(), owner.ID)
		}
		fmt.Printf("Recipients:  %s\n", formatUsers(c.Recipients()))
	}
}

func formatUsers(users []*revolt.User) string {
	if len(users) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, fmt.Sprintf("%s (%s)", u.Username(), u.ID))
	}
	return strings.Join(names, ", ")
}

// ============================================================================
// channel send
// ============================================================================

var channelSendCmd = &cobra.Command{
	Use:   "send <channel-id> <content>",
	Short: "Send a message to a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ch, err := client.FetchChannel(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		msg, err := ch.SendMessage(ctx, args[1], channelSendNonce)
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		if channelJSONOutput {
			return printJSON(msg.Raw())
		}
		fmt.Printf("Message sent (id: %s, nonce: %s)\n", msg.ID, msg.Nonce())
		return nil
	},
}

// ============================================================================
// channel delete
// ============================================================================

var channelDeleteCmd = &cobra.Command{
	Use:   "delete <channel-id>",
	Short: "Delete a channel (or leave a group)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ch, err := client.FetchChannel(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		if err := ch.Delete(ctx, false); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("Channel %s deleted\n", ch.ID())
		return nil
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	channelCmd.PersistentFlags().BoolVar(&channelJSONOutput, "json", false, "print raw JSON")
	channelSendCmd.Flags().StringVar(&channelSendNonce, "nonce", "", "idempotency nonce (generated when empty)")

	channelCmd.AddCommand(channelGetCmd)
	channelCmd.AddCommand(channelSendCmd)
	channelCmd.AddCommand(channelDeleteCmd)
	rootCmd.AddCommand(channelCmd)
}
