package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationReport is the outcome of validating one scenario file.
type ValidationReport struct {
	File       string       `json:"file"`
	Valid      bool         `json:"valid"`
	Name       string       `json:"name,omitempty"`
	Atoms      int          `json:"atoms,omitempty"`
	Reactions  int          `json:"reactions,omitempty"`
	Edges      int          `json:"edges,omitempty"`
	Steps      int          `json:"steps,omitempty"`
	Assertions int          `json:"assertions,omitempty"`
	Error      *loadFailure `json:"error,omitempty"`
}

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid   bool               `json:"valid"`
	Reports []ValidationReport `json:"reports"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files without running them.

YAML scenarios are decoded strictly; CUE scenarios are unified with the
#Scenario schema. Both are then checked for unknown nodes, bad step
targets and dependency cycles between reactions.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true}
	exit := ExitSuccess
	for _, file := range files {
		f.VerboseLog("Validating %s", file)
		report := validateFile(file)
		if !report.Valid {
			result.Valid = false
			exit = max(exit, report.Error.exitCode())
		}
		result.Reports = append(result.Reports, report)
	}

	if f.JSON() {
		var cliErr *CLIError
		if !result.Valid {
			cliErr = &CLIError{Code: firstErrorCode(result), Message: "validation failed"}
		}
		if err := f.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		writeValidateText(f, result)
	}

	if exit != ExitSuccess {
		return NewExitError(exit, "validation failed")
	}
	return nil
}

func validateFile(path string) ValidationReport {
	scenario, lf := loadScenario(path)
	if lf != nil {
		return ValidationReport{File: path, Error: lf}
	}

	edges := 0
	for _, consumers := range scenario.Adjacency() {
		edges += len(consumers)
	}
	return ValidationReport{
		File:       path,
		Valid:      true,
		Name:       scenario.Name,
		Atoms:      len(scenario.Atoms),
		Reactions:  len(scenario.Reactions),
		Edges:      edges,
		Steps:      len(scenario.Steps),
		Assertions: len(scenario.Assertions),
	}
}

func firstErrorCode(result ValidationResult) string {
	for _, r := range result.Reports {
		if r.Error != nil {
			return r.Error.Code
		}
	}
	return ErrCodeInvalid
}

func writeValidateText(f *OutputFormatter, result ValidationResult) {
	w := f.Writer
	for _, r := range result.Reports {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s: %s (%d atoms, %d reactions, %d edges, %d steps)\n",
				r.File, r.Name, r.Atoms, r.Reactions, r.Edges, r.Steps)
			continue
		}

		loc := r.File
		if r.Error.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", r.File, r.Error.Line, r.Error.Column)
		}
		fmt.Fprintf(w, "✗ %s [%s]: %s\n", loc, r.Error.Code, r.Error.Message)
		for _, c := range r.Error.Cycles {
			fmt.Fprintf(w, "  cycle: %s\n", strings.Join(c.Path, " → "))
		}
	}
}
