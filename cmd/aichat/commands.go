package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/chat"
	"aichat/pkg/generation"
	"aichat/pkg/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			hub := server.NewHub()
			generator := a.generator(server.NewBroadcastUpdater(a.db, hub))
			srv := server.New(cfg.Server.Addr, generator, a.catalog, a.db, hub)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Server.Addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("server_shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

type generateOptions struct {
	model        string
	userID       string
	chatID       string
	messageID    string
	webSearch    bool
	showThinking bool
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate one response and print it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			req := chat.Request{
				UserID:          g.userID,
				ChatID:          g.chatID,
				MessageID:       g.messageID,
				Prompt:          strings.Join(args, " "),
				ModelID:         g.model,
				EnableWebSearch: g.webSearch,
			}
			if req.ChatID == "" {
				req.ChatID = uuid.NewString()
			}
			if req.MessageID == "" {
				req.MessageID = uuid.NewString()
			}

			generator := a.generator(a.db)

			// Interrupt becomes a cooperative cancel so the message is
			// finalized like any other cancelled generation.
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-cmd.Context().Done():
					_ = a.controller.Cancel(context.Background(), req.MessageID)
				case <-done:
				}
			}()

			res := generator.Generate(context.WithoutCancel(cmd.Context()), req)

			out := cmd.OutOrStdout()
			if g.showThinking && res.Thinking != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "--- thinking ---\n%s\n--- answer ---\n", res.Thinking)
			}
			fmt.Fprintln(out, res.Content)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, s := range res.Sources {
					fmt.Fprintf(out, "  [%d] %s %s\n", i+1, s.Title, s.URL)
				}
			}
			slog.Debug("generate_command_done", "message_id", req.MessageID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&g.model, "model", "m", "gpt-4.1-mini", "model id, see 'aichat models'")
	f.StringVar(&g.userID, "user", "local", "user id whose keys are used")
	f.StringVar(&g.chatID, "chat", "", "chat id (default random)")
	f.StringVar(&g.messageID, "message", "", "message id (default random)")
	f.BoolVarP(&g.webSearch, "web-search", "w", false, "allow the model to search the web")
	f.BoolVar(&g.showThinking, "thinking", false, "print the model's reasoning to stderr")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <message-id>",
		Short: "Cancel an in-flight generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.sharedBackend() {
				return errors.New("cancel needs the sqlite or redis generation backend")
			}

			ctx := cmd.Context()
			if !a.controller.IsGenerating(ctx, args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "No generation in progress for %s\n", args[0])
				return nil
			}
			if err := a.controller.Cancel(ctx, args[0]); err != nil {
				return fmt.Errorf("cancel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <message-id>",
		Short: "Show the state of a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			gen, err := a.controller.Status(cmd.Context(), args[0])
			if errors.Is(err, generation.ErrNotFound) {
				fmt.Fprintf(out, "%s: not generating\n", args[0])
				return nil
			}
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			fmt.Fprintf(out, "%s: generating since %s (cancelled=%t searching=%t)\n",
				args[0], gen.CreatedAt.Format(time.RFC3339), gen.Cancelled, gen.Searching)
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := ai.DefaultCatalog()
			if provider != "" {
				if _, err := catalog.Provider(ai.ProviderID(provider)); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tTHINKING\tTOOLS\tCONTEXT")
			for _, p := range catalog.Providers() {
				if provider != "" && string(p.ID) != provider {
					continue
				}
				for _, m := range catalog.Models(p.ID) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Name, m.ID, yesNo(m.Capabilities.Thinking), yesNo(m.Capabilities.Tool), m.Context.Window)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "only list this provider")
	return cmd
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys",
	}

	set := &cobra.Command{
		Use:   "set <provider> <api-key>",
		Short: "Store an API key (host-wide, or per user with --user)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			provider := ai.ProviderID(args[0])
			if _, err := a.catalog.Provider(provider); err != nil {
				return err
			}
			if userID != "" {
				err = a.db.SetAPIKey(cmd.Context(), userID, provider, args[1])
			} else {
				err = a.keyFile.Set(provider, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key\n", provider)
			return nil
		},
	}
	set.Flags().StringVar(&userID, "user", "", "store for this user instead of the key file")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show which providers have a key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			user := userID
			if user == "" {
				user = "local"
			}
			resolved, err := a.keys.GetAPIKeys(cmd.Context(), user)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tKEY")
			for _, p := range a.catalog.Providers() {
				fmt.Fprintf(w, "%s\t%s\n", p.ID, maskKey(resolved[p.ID]))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&userID, "user", "", "user id (default local)")

	cmd.AddCommand(set, list)
	return cmd
}

func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts.configPath, opts.logLevel)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// maskKey keeps only the last four characters visible.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(none)"
	case len(key) <= 4:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}
