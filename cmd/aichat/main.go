package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aichat/pkg/version"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "aichat",
		Short:         "Multi-provider AI response generation",
		Long:          "aichat streams responses from OpenAI, Anthropic, Google, xAI and Groq models into stored chat messages.",
		Version:       version.Summary(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.aichat/config.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level from config")

	root.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newCancelCmd(opts),
		newStatusCmd(opts),
		newModelsCmd(),
		newKeysCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "aichat version %s\n", info.Version)
			fmt.Fprintf(out, "  commit: %s\n", info.Commit)
			fmt.Fprintf(out, "  built: %s\n", info.Date)
			fmt.Fprintf(out, "  go: %s\n", info.GoVersion)
			fmt.Fprintf(out, "  platform: %s\n", info.Platform)
		},
	}
}
