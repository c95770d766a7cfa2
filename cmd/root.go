/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valorbot",
	Short: "Telegram chatbot with intent-aware reactions and tools",
	Long: `Valorbot answers Telegram messages with an LLM agent. Each message is
classified by intent, acknowledged with emoji reactions that track progress,
and answered with a tool set scoped to that intent.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
