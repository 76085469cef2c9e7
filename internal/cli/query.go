package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strand/internal/engine"
	"github.com/roach88/strand/internal/session"
)

// queryRow is one result row with its column order preserved.
type queryRow struct {
	names []string
	vals  []any
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	flags := ConnFlags{}
	limit := 0

	cmd := &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Stream a query's rows through the serialized core",
		Long: `Run a row-returning SQL statement and print each row.

Rows are produced lazily by the connection worker and printed as they
arrive. With --limit the subscription stops early after N rows, which
cancels the rest of the query at its next checkpoint.

Example:
  strand query --db ./app.db "SELECT id, name FROM users ORDER BY id"
  strand query --db ./app.db --limit 10 "SELECT name FROM users" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, flags, limit, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Database, "db", "", "path to the database file (required)")
	cmd.Flags().StringVar(&flags.ConfigFile, "config", "", "path to a YAML connection configuration")
	cmd.Flags().BoolVar(&flags.ReadOnly, "readonly", false, "open the database without write access")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after N rows (0 = all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *RootOptions, flags ConnFlags, limit int, sql string, args []string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	conn, cleanup, err := openConnection(ctx, flags)
	if err != nil {
		formatter.Error("open_failed", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer cleanup()

	stream := session.Query(conn, sql, scanRow, bindArgs(args)...)

	var rows []queryRow
	err = stream.Each(ctx, func(row queryRow) bool {
		rows = append(rows, row)
		return limit == 0 || len(rows) < limit
	})
	// Stopping at --limit surfaces as a cancellation; that is the rows the
	// caller asked for, not a failure.
	if err != nil && !(limit > 0 && len(rows) == limit) {
		formatter.Error("query_failed", err.Error())
		return WrapExitError(ExitFailure, "query failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(rowsToMaps(rows))
	}
	printRows(formatter, rows)
	return nil
}

// scanRow decodes one engine row, keeping column order and converting
// []byte text to string for display.
func scanRow(cols []engine.Column, vals []any) (queryRow, error) {
	row := queryRow{
		names: make([]string, len(vals)),
		vals:  make([]any, len(vals)),
	}
	for i, v := range vals {
		row.names[i] = fmt.Sprintf("c%d", i)
		if i < len(cols) && cols[i].Name != "" {
			row.names[i] = cols[i].Name
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row.vals[i] = v
	}
	return row, nil
}

func rowsToMaps(rows []queryRow) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row.vals))
		for j, v := range row.vals {
			m[row.names[j]] = v
		}
		out[i] = m
	}
	return out
}

func printRows(f *OutputFormatter, rows []queryRow) {
	if len(rows) == 0 {
		fmt.Fprintln(f.Writer, "(no rows)")
		return
	}

	fmt.Fprintln(f.Writer, strings.Join(rows[0].names, "\t"))
	for _, row := range rows {
		parts := make([]string, len(row.vals))
		for i, v := range row.vals {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(f.Writer, strings.Join(parts, "\t"))
	}
}
