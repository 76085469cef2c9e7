package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExecResult is the JSON payload for a completed statement.
type ExecResult struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

func (r ExecResult) String() string {
	return fmt.Sprintf("rows affected: %d, last insert id: %d", r.RowsAffected, r.LastInsertID)
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	flags := ConnFlags{}

	cmd := &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run one statement through the serialized core",
		Long: `Run a single SQL statement against the database.

The statement is scheduled as one unit of work on the connection's
operation queue and executed by its worker, exactly like library use.
Positional arguments after the SQL bind to ? placeholders; integers and
floats bind as numbers, everything else as text.

Example:
  strand exec --db ./app.db "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"
  strand exec --db ./app.db "INSERT INTO users (name) VALUES (?)" ada`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, flags, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Database, "db", "", "path to the database file (required)")
	cmd.Flags().StringVar(&flags.ConfigFile, "config", "", "path to a YAML connection configuration")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExec(opts *RootOptions, flags ConnFlags, sql string, args []string, cmd *cobra.Command) error {
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

	formatter.VerboseLog("connection %s opened", conn.ID())

	res, err := conn.Exec(ctx, sql, bindArgs(args)...).Await(ctx)
	if err != nil {
		formatter.Error("exec_failed", err.Error())
		return WrapExitError(ExitFailure, "statement failed", err)
	}

	return formatter.Success(ExecResult{
		LastInsertID: res.LastInsertID,
		RowsAffected: res.RowsAffected,
	})
}
