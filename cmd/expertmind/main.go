package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "expertmind",
	Short: "Local document Q&A that learns from your feedback",
	Long: `expertmind answers questions about uploaded PDF documents with a local
model and improves over time: likes, dislikes, and notes are distilled into
learned knowledge that takes precedence in future answers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the expertmind version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("expertmind version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, versionCmd)
	rootCmd.AddCommand(uploadCmd, askCmd, docsCmd, historyCmd)
	rootCmd.AddCommand(feedbackCmd, noteCmd, statsCmd, learnedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
