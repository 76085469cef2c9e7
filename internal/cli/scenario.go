package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strand/internal/harness"
)

// ScenarioResult is the JSON payload for a completed scenario run.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`
}

func (r ScenarioResult) String() string {
	if r.Pass {
		return fmt.Sprintf("PASS %s (%d events)", r.Name, r.Events)
	}
	s := fmt.Sprintf("FAIL %s (%d events)", r.Name, r.Events)
	for _, e := range r.Errors {
		s += "\n  " + e
	}
	return s
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <file>",
		Short: "Run a YAML scenario against a scripted engine",
		Long: `Load a scenario file, replay its flow against a scripted in-memory
engine, and check its assertions.

Exit code 0 means every step matched its expectation and every assertion
held; a failed scenario exits 1.

Example:
  strand scenario ./testdata/scenarios/serialized_flow.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		formatter.Error("scenario_load_failed", err.Error())
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("running scenario %s (%d steps)", sc.Name, len(sc.Flow))

	result, err := harness.Run(sc)
	if err != nil {
		formatter.Error("scenario_run_failed", err.Error())
		return WrapExitError(ExitFailure, "scenario run failed", err)
	}

	payload := ScenarioResult{
		Name:   sc.Name,
		Pass:   result.Pass,
		Events: len(result.Trace),
		Errors: result.Errors,
	}
	if outErr := formatter.Success(payload); outErr != nil {
		return outErr
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}
