package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the AgentRelay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := initLogger(cfg.Log)
			defer logger.Sync()

			logger.Info("Starting AgentRelay",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			promReg := prometheusRegistry()
			collector := metrics.NewCollectorWithRegistry("agentrelay", promReg, logger)

			a, err := newApp(ctx, cfg, logger, appOptions{collector: collector, telemetry: true})
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					logger.Warn("shutdown finished with errors", zap.Error(err))
				}
			}()

			// 启动时严格校验：没有 Agent 的服务没有意义
			if err := a.engine.Validate(ctx); err != nil {
				return err
			}

			if err := NewServer(a, loader, promReg, logger).Run(ctx); err != nil {
				return err
			}
			logger.Info("AgentRelay stopped")
			return nil
		},
	}
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func newRunCmd() *cobra.Command {
	var (
		stream bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Run one session locally and print the conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cliLogger(cfg.Log)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			input := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			start := time.Now()

			var final *agent.WorkflowState
			if stream {
				st, err := a.engine.Stream(ctx, input)
				if err != nil {
					return err
				}
				seen := 0
				for state := range st.States() {
					if !asJSON {
						printMessages(out, state, seen)
					}
					seen = len(state.Messages)
				}
				final = st.Final()
			} else {
				final, err = a.engine.Run(ctx, input)
				if err != nil {
					return err
				}
				if !asJSON {
					printMessages(out, final, 0)
				}
			}

			if asJSON {
				return writeJSON(out, api.NewRunResponse(final, time.Since(start)))
			}
			printSummary(out, final, time.Since(start))
			if final.Status == agent.StatusError {
				return fmt.Errorf("session ended with error: %s", final.ErrorMessage())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "Print each turn as soon as it finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final result as JSON")
	return cmd
}

// printMessages 输出 from 之后的新消息
func printMessages(w io.Writer, state *agent.WorkflowState, from int) {
	for _, m := range state.Messages[from:] {
		author := string(m.Role)
		if m.Name != "" {
			author = m.Name
		}
		if m.Content != "" {
			fmt.Fprintf(w, "[%d] %s: %s\n", state.Step, author, m.Content)
		}
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(w, "[%d] %s -> %s(%s)\n", state.Step, author, tc.Name, string(tc.Arguments))
		}
	}
}

func printSummary(w io.Writer, state *agent.WorkflowState, took time.Duration) {
	fmt.Fprintf(w, "\nthread:  %s\nstatus:  %s\nsteps:   %d\nelapsed: %s\n",
		state.ThreadID, state.Status, state.Step, took.Round(time.Millisecond))
	if msg := state.ErrorMessage(); msg != "" {
		fmt.Fprintf(w, "error:   %s\n", msg)
	}
}

// =============================================================================
// 📜 threads / history 命令
// =============================================================================

func newThreadsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List persisted sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				threads, err := a.engine.ListThreads(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, threads)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "THREAD\tSTATUS\tSTEPS\tUPDATED")
				for _, t := range threads {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ThreadID, t.Status, t.Steps, t.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <thread-id>",
		Short: "Delete every checkpoint of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.engine.DeleteThread(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Show the checkpoints of a session in step order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				history, err := a.engine.LoadHistory(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					cps := make([]api.Checkpoint, 0, len(history))
					for _, st := range history {
						cps = append(cps, api.NewCheckpoint(st))
					}
					return writeJSON(out, cps)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "STEP\tSTATUS\tAGENT\tMESSAGES")
				for _, st := range history {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", st.Step, st.Status, st.ActiveAgent, len(st.Messages))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full checkpoints as JSON")
	return cmd
}

// =============================================================================
// 🕸️ graph 命令
// =============================================================================

func newGraphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the compiled handoff graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (json, yaml)", format)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				g, err := a.engine.Graph(ctx)
				if err != nil {
					return err
				}
				desc := g.Describe()
				var text string
				if format == "yaml" {
					text, err = desc.ToYAML()
				} else {
					text, err = desc.ToJSON()
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	return cmd
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := tlsutil.SecureHTTPClient(timeout)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(addr, "/")+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}

// =============================================================================
// 📋 版本
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "AgentRelay %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// withApp 为一次性命令装配应用并在结束后释放
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg.Log)
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
