package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"valorbot/pkg/config"
	"valorbot/pkg/gateway"
	"valorbot/pkg/intent"
	"valorbot/pkg/logger"
	"valorbot/pkg/toolpolicy"

	"github.com/spf13/cobra"
)

var (
	classifyImage bool
	classifyGroup bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify a message and show the reaction and tools it would get",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.TrimSpace(strings.Join(args, " "))

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		classifier := gateway.NewClassifier(cfg.Classifier, appLogger)
		c := classifier.Classify(context.Background(), text, intent.ClassifyContext{
			HasImage:    classifyImage,
			HasLinks:    strings.Contains(text, "http://") || strings.Contains(text, "https://"),
			IsGroupChat: classifyGroup,
		})

		printClassification(cmd.OutOrStdout(), c, toolpolicy.Default())
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyImage, "image", false, "treat the message as carrying an image")
	classifyCmd.Flags().BoolVar(&classifyGroup, "group", false, "treat the message as sent in a group chat")
}

func printClassification(out io.Writer, c intent.Classification, policy *toolpolicy.Table) {
	resolved := policy.Resolve(c)

	fmt.Fprintf(out, "%s %s (confidence %.2f)\n", c.Symbol, c.Intent, c.Confidence)
	if c.Reasoning != "" {
		fmt.Fprintf(out, "reason:     %s\n", c.Reasoning)
	}
	fmt.Fprintf(out, "allowed:    %s\n", joinOrDash(resolved.Allowed))
	fmt.Fprintf(out, "priority:   %s\n", joinOrDash(resolved.Priority))
	fmt.Fprintf(out, "restricted: %s\n", joinOrDash(resolved.Restricted))
}
