// Command agentrun is a small CLI for chatting with a configured agent. It
// wires the session backend, model provider and plugins from a YAML config
// file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/model/anthropic"
	"github.com/hupe1980/agentrun/model/openai"
	"github.com/hupe1980/agentrun/plugin"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/session/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "agentrun",
		Short:         "Run conversational agent turns from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentrun.yaml", "path to config file")

	cmd.AddCommand(newChatCmd(&configPath))

	return cmd
}

func newChatCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		sessionID string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session with the configured agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger := buildLogger(cfg.Logging, verbose)

			m, err := buildModel(cfg.Model)
			if err != nil {
				return err
			}

			root := agent.NewLLMAgent(cfg.Agent.Name, m, func(o *agent.LLMAgentOptions) {
				if cfg.Agent.Instruction != "" {
					o.Instruction = agent.NewInstructionFromText(cfg.Agent.Instruction)
				}
			})

			opts := []func(o *runner.Options){
				func(o *runner.Options) {
					o.Logger = logger
					o.Plugins = []core.Plugin{plugin.NewLoggingPlugin(logger)}
				},
			}
			if cfg.Session.Backend == "sqlite" {
				svc, err := sqlite.Open(cfg.Session.Path, func(o *sqlite.Options) { o.Logger = logger })
				if err != nil {
					return err
				}
				defer svc.Close()
				opts = append(opts, func(o *runner.Options) { o.SessionService = svc })
			}

			r, err := runner.New(cfg.AppName, root, opts...)
			if err != nil {
				return err
			}

			return chatLoop(cmd, r, userID, sessionID)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id for session scoping")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to resume (empty creates a new one)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func chatLoop(cmd *cobra.Command, r *runner.Runner, userID, sessionID string) error {
	ctx := cmd.Context()

	sess, err := r.SessionService().Create(r.AppName(), userID, sessionID, nil)
	if err != nil {
		// Resuming an existing session is fine.
		if sessionID == "" {
			return err
		}
	} else {
		sessionID = sess.ID
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s (ctrl-d to exit)\n", sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		content := core.NewTextContent(core.UserAuthor, line)
		events, err := r.RunSync(ctx, runner.RunRequest{
			UserID:     userID,
			SessionID:  sessionID,
			NewMessage: &content,
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}

		for _, ev := range events {
			if ev.Content == nil || ev.Author == core.UserAuthor {
				continue
			}
			if text := ev.Content.Text(); text != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ev.Author, text)
			}
		}
	}
}

func buildModel(cfg config.ModelConfig) (core.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "mock":
		return model.NewMockModel(cfg.Name, "mock"), nil
	default:
		return nil, core.NewConfigurationError("unknown model provider %q", cfg.Provider)
	}
}

func buildLogger(cfg config.LoggingConfig, verbose bool) logging.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var zl zerolog.Logger
	if cfg.Format == "json" {
		zl = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}

	return logging.NewZerologAdapter(zl)
}
