package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strand/internal/config"
)

// ConfigSummary is the JSON payload for a resolved configuration.
type ConfigSummary struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
	JournalMode string `json:"journal_mode"`
	Synchronous string `json:"synchronous"`
	ForeignKeys bool   `json:"foreign_keys"`
	CacheKB     int    `json:"cache_kb,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
	DSN         string `json:"dsn"`
}

func (s ConfigSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "path:         %s\n", s.Path)
	fmt.Fprintf(&b, "busy_timeout: %s\n", s.BusyTimeout)
	fmt.Fprintf(&b, "journal_mode: %s\n", s.JournalMode)
	fmt.Fprintf(&b, "synchronous:  %s\n", s.Synchronous)
	fmt.Fprintf(&b, "foreign_keys: %t\n", s.ForeignKeys)
	if s.CacheKB > 0 {
		fmt.Fprintf(&b, "cache_kb:     %d\n", s.CacheKB)
	}
	if s.ReadOnly {
		fmt.Fprintf(&b, "read_only:    true\n")
	}
	fmt.Fprintf(&b, "dsn:          %s", s.DSN)
	return b.String()
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [file]",
		Short: "Show the resolved connection configuration",
		Long: `Resolve a connection configuration and print its settings and the
connection string they render to.

With no argument the defaults are shown; with a file argument the YAML
configuration is loaded over the defaults first.

Example:
  strand config
  strand config ./strand.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runConfig(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runConfig(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			formatter.Error("config_load_failed", err.Error())
			return WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		cfg = loaded
	}

	return formatter.Success(ConfigSummary{
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout.String(),
		JournalMode: cfg.JournalMode,
		Synchronous: cfg.Synchronous,
		ForeignKeys: cfg.ForeignKeys,
		CacheKB:     cfg.CacheKB,
		ReadOnly:    cfg.ReadOnly,
		DSN:         cfg.DSN(),
	})
}
