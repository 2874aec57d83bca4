// Command captain is an interactive multi-agent chat in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/captain"
	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/metrics"
	"github.com/hupe1980/captain/render"
)

var (
	configPath string
	workspace  string
	noMarkdown bool
)

var rootCmd = &cobra.Command{
	Use:   "captain",
	Short: "Streaming multi-agent chat",
	Long: `Captain chats with a major model that can call tools and delegate
focused work to named sub-agents. Thinking, answers, tool calls and
sub-agent activity are rendered as they stream in.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML config file")
	rootCmd.Flags().StringVar(&workspace, "workspace", "", "Workspace directory (overrides the config)")
	rootCmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "Render answers as plain text")
	_ = rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, config.WithWorkspace(workspace))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New(prometheus.DefaultRegisterer)
		stop := serveMetrics(cfg.Metrics.Addr, m, logger)
		defer stop()
	}

	c, err := captain.FromConfig(cfg, func(o *captain.BuildOptions) {
		o.Logger = logger
		o.Metrics = m
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("captain.close.failed", "error", err)
		}
	}()

	r, err := render.New(func(o *render.Options) {
		o.Out = cmd.OutOrStdout()
		o.Markdown = !noMarkdown
	})
	if err != nil {
		return err
	}

	checkpoint := cfg.Database.Path
	if cfg.Database.Driver == config.DriverMemory {
		checkpoint = "(in memory)"
	}
	if err := r.Banner(render.BannerInfo{
		Model:      cfg.Model.Name,
		Tools:      cfg.Tools,
		SubAgents:  subAgentNames(cfg),
		Workspace:  cfg.Workspace,
		Checkpoint: checkpoint,
		Prompts:    cfg.PromptNames(),
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rp, err := newREPL(cmd.InOrStdin(), cmd.OutOrStdout(), c.Chat, r, func(o *replOptions) {
		o.Workspace = cfg.Workspace
		o.Prompts = cfg.Prompts
		if !cfg.REPL.NoHistory {
			o.HistoryFile = cfg.REPL.HistoryFile
		}
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			// Ctrl-C stops the running turn; at the prompt it ends the session.
			if sig == os.Interrupt && rp.interrupt() {
				continue
			}
			cancel()
			return
		}
	}()

	return rp.run(ctx)
}

func newLogger(lc config.LoggingConfig) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, err
	}
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    lc.Format,
		Output:    out,
		Component: "captain",
	})
	return logger, closeFn, nil
}

func serveMetrics(addr string, m *metrics.Metrics, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server.failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("metrics.server.started", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func subAgentNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.SubAgents))
	for n := range cfg.SubAgents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
