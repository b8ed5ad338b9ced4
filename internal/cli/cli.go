// Package cli wires the probe and the demo chat server into cobra commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/chatprobe/internal/app"
	"github.com/raysh454/chatprobe/internal/demochat"
	"github.com/raysh454/chatprobe/internal/logging"
	"github.com/raysh454/chatprobe/internal/probe"
	"github.com/raysh454/chatprobe/internal/report"
	"github.com/raysh454/chatprobe/internal/runstore"
)

// probeFlags are the overrides accepted on top of the config file.
type probeFlags struct {
	configPath string
	url        string
	dbPath     string
	headful    bool
	debug      bool
}

func (f *probeFlags) load() (*app.Config, error) {
	cfg, err := app.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.url != "" {
		cfg.TargetURL = f.url
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.headful {
		cfg.Headless = false
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, cfg *app.Config) logging.Logger {
	return logging.NewLogger(w, "chatprobe", logging.ParseLevel(cfg.LogLevel))
}

// NewProbeCmd builds the chatprobe root command. Run without arguments it
// performs the stock probe against the local chat page.
func NewProbeCmd() *cobra.Command {
	flags := &probeFlags{}
	cmd := &cobra.Command{
		Use:           "chatprobe",
		Short:         "Probe a chat page in a headless browser",
		Long:          `chatprobe opens the chat page, sends one message, screenshots the reply while it streams and prints what the page did.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			opts := []probe.Option{probe.WithOutput(cmd.OutOrStdout())}
			if cfg.DBPath != "" {
				store, err := runstore.Open(cfg.DBPath, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, probe.WithSaver(store))
			}

			res, err := probe.NewRunner(cfg, logger, opts...).Run(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.DBPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nRun saved: %s\n", res.RunID)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file overriding the defaults")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite file to record runs in")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.url, "url", "", "Chat page to probe (default http://localhost:5173/chat)")
	cmd.Flags().BoolVar(&flags.headful, "headful", false, "Show the browser window")

	cmd.AddCommand(newRunsCmd(flags), newShowCmd(flags))
	return cmd
}

func openStore(cmd *cobra.Command, flags *probeFlags) (*runstore.Store, *app.Config, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBPath == "" {
		return nil, nil, fmt.Errorf("no run database: pass --db or set db_path in the config")
	}
	store, err := runstore.Open(cfg.DBPath, newLogger(cmd.ErrOrStderr(), cfg))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newRunsCmd(flags *probeFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded probe runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tACTION\tFRAMES\tNETWORK\tCONSOLE\tTARGET")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.ActionKind, r.Frames, r.Network, r.Console, r.Target)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newShowCmd(flags *probeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report.New(cmd.OutOrStdout(), report.Options{
				InitialPreview: cfg.InitialPreview,
				FinalPreview:   cfg.FinalPreview,
				ConsoleLimit:   cfg.ConsoleLimit,
				Marker:         cfg.NetworkMarker,
			}).Print(res)
			return nil
		},
	}
}

// NewDemoCmd builds the chatdemo command serving the demo chat application.
func NewDemoCmd() *cobra.Command {
	cfg := demochat.DefaultConfig()
	var noSuggestions, debug bool
	cmd := &cobra.Command{
		Use:          "chatdemo",
		Short:        "Serve a local chat page for chatprobe to talk to",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Port < 1 || cfg.Port > 65535 {
				return fmt.Errorf("invalid port: %d", cfg.Port)
			}
			if noSuggestions {
				cfg.Suggestions = nil
			}
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			logger := logging.NewLogger(cmd.ErrOrStderr(), "chatdemo", level)
			return demochat.NewServer(cfg, logger).Start(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	cmd.Flags().BoolVar(&noSuggestions, "no-suggestions", false, "Hide the suggestion buttons so the probe types its message")
	cmd.Flags().DurationVar(&cfg.ChunkDelay, "chunk-delay", cfg.ChunkDelay, "Pause between streamed reply chunks")
	cmd.Flags().IntVar(&cfg.PerMinute, "per-minute", cfg.PerMinute, "Chat requests allowed per client per minute (0 disables)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

// Execute runs cmd with a context cancelled on interrupt and exits non-zero
// on error.
func Execute(ctx context.Context, cmd *cobra.Command) {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
