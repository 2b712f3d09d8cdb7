package cli

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/roach88/rxstore/internal/graph"
	"github.com/roach88/rxstore/internal/harness"
)

// loadFailure describes a scenario file that could not be loaded.
type loadFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`

	Cycles []graph.CycleWarning `json:"cycles,omitempty"`
}

// loadScenario loads path and classifies any failure for output.
func loadScenario(path string) (*harness.Scenario, *loadFailure) {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return nil, classifyLoadError(err)
	}
	return scenario, nil
}

func classifyLoadError(err error) *loadFailure {
	f := &loadFailure{Code: ErrCodeLoad, Message: err.Error()}

	var schemaErr *harness.SchemaError
	var cycleErr *harness.CycleError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.Code = ErrCodeNotFound
	case errors.As(err, &schemaErr):
		f.Code = ErrCodeSchema
		if schemaErr.Pos.IsValid() {
			f.Line = schemaErr.Pos.Line()
			f.Column = schemaErr.Pos.Column()
		}
	case errors.As(err, &cycleErr):
		f.Code = ErrCodeCycle
		f.Cycles = cycleErr.Cycles
	case strings.HasPrefix(err.Error(), "invalid scenario"):
		f.Code = ErrCodeInvalid
	}
	return f
}

// exitCode maps a load failure to the process exit code. A missing file is
// a command error; a broken scenario is a failure.
func (f *loadFailure) exitCode() int {
	if f.Code == ErrCodeNotFound {
		return ExitCommandError
	}
	return ExitFailure
}
