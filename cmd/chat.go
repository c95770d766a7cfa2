package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"valorbot/pkg/bus"
	"valorbot/pkg/channel"
	"valorbot/pkg/config"
	"valorbot/pkg/gateway"
	"valorbot/pkg/logger"
	"valorbot/pkg/router"
	"valorbot/pkg/ui/chat"

	"github.com/spf13/cobra"
)

const (
	consoleChatID  int64 = 1
	consoleGroupID int64 = -1
	consoleBotID   int64 = 1000
)

var (
	promptText  string
	chatAsGroup bool
	chatUser    string
	chatBotName string
	chatDebug   bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the bot in a local chat simulator",
	Long: `Runs the full message pipeline against a terminal chat instead of Telegram.
Reactions appear next to your messages as the bot works. Pass a message to send
it once and exit, or start an interactive session without one.`,
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolvePrompt(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		log := slog.New(slog.DiscardHandler)
		if chatDebug {
			log, err = logger.New(cfg.Logging)
			if err != nil {
				fmt.Printf("failed to initialize logger: %v\n", err)
				return
			}
		}
		slog.SetDefault(log)

		session := consoleSession(chatAsGroup, chatUser)
		prepareConsoleConfig(cfg, session)

		transport := chat.NewTransport(channel.ChatInfo{ID: session.ChatID, Type: session.ChatType, Title: session.ChatTitle})
		ctx := context.Background()

		stack, err := gateway.NewStack(ctx, cfg, gateway.StackOptions{
			Transport: transport,
			Bot:       router.Identity{ID: consoleBotID, Username: chatBotName},
			Console:   io.Discard,
			Log:       log,
		})
		if err != nil {
			fmt.Printf("failed to initialize bot: %v\n", err)
			return
		}
		defer stack.Close()

		if err := stack.Agent.Health(ctx); err != nil {
			fmt.Printf("provider health check failed: %v\n", err)
			return
		}

		info := chat.RuntimeInfo{Provider: cfg.Agent.Provider, Model: cfg.Agent.Model, Bot: "@" + chatBotName}
		if prompt != "" {
			err = chat.RunOneShot(ctx, transport, stack.Router.Handle, session, info, prompt)
		} else {
			err = chat.RunInteractive(ctx, transport, stack.Router.Handle, session, info)
		}
		if err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "message to send once")
	chatCmd.Flags().BoolVar(&chatAsGroup, "group", false, "simulate a group chat where the bot must be mentioned")
	chatCmd.Flags().StringVar(&chatUser, "user", "console", "username of the simulated sender")
	chatCmd.Flags().StringVar(&chatBotName, "bot", "valorbot", "username of the simulated bot")
	chatCmd.Flags().BoolVar(&chatDebug, "debug", false, "write logs to stderr")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func consoleSession(group bool, username string) chat.Session {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	session := chat.Session{
		ChatID:    consoleChatID,
		ChatType:  bus.ChatTypePrivate,
		ChatTitle: "console",
		Sender:    bus.Sender{ID: consoleChatID, Username: username},
	}
	if group {
		session.ChatID = consoleGroupID
		session.ChatType = bus.ChatTypeGroup
		session.ChatTitle = "console group"
	}
	return session
}

// prepareConsoleConfig admits the simulated chat and sender regardless of the
// Telegram allow-lists.
func prepareConsoleConfig(cfg *config.Config, session chat.Session) {
	cfg.Telegram.AllowFrom = nil
	if session.ChatType == bus.ChatTypePrivate {
		cfg.Telegram.AllowDMs = true
		return
	}
	if !slices.Contains(cfg.Telegram.AllowedGroups, session.ChatID) {
		cfg.Telegram.AllowedGroups = append(cfg.Telegram.AllowedGroups, session.ChatID)
	}
}
