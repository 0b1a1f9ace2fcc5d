// Package actions reports to the invoking GitHub Actions workflow: it reads
// step inputs, sets outputs, extends PATH and emits the failure annotation.
package actions

import (
	"fmt"
	"os"
	"strings"

	"github.com/sethvargo/go-githubactions"
)

// Reporter wraps a workflow action context.
type Reporter struct {
	action *githubactions.Action

	getenv func(string) string
	setenv func(string, string) error
}

// New returns a reporter using the process environment and stdout.
func New(opts ...githubactions.Option) *Reporter {
	return &Reporter{
		action: githubactions.New(opts...),
		getenv: os.Getenv,
		setenv: os.Setenv,
	}
}

// Input returns the whitespace-trimmed value of a step input.
func (r *Reporter) Input(name string) string {
	return strings.TrimSpace(r.action.GetInput(name))
}

// ParseBool parses value the way workflow boolean inputs are parsed. Only
// the YAML 1.2 core schema spellings are accepted; an empty value yields def.
func ParseBool(name string, value string, def bool) (bool, error) {
	switch value {
	case "":
		return def, nil
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("input does not meet YAML 1.2 \"Core Schema\" specification: %s\n"+
		"Support boolean input list: `true | True | TRUE | false | False | FALSE`", name)
}

// Infof writes an informational line to the workflow log.
func (r *Reporter) Infof(format string, args ...any) {
	r.action.Infof(format+"\n", args...)
}

// SetOutput sets a step output.
func (r *Reporter) SetOutput(name string, value string) {
	r.action.SetOutput(name, value)
}

// AddPath prepends dir to PATH for subsequent steps and for this process.
func (r *Reporter) AddPath(dir string) error {
	r.action.AddPath(dir)

	path := dir
	if cur := r.getenv("PATH"); cur != "" {
		path = dir + string(os.PathListSeparator) + cur
	}
	if err := r.setenv("PATH", path); err != nil {
		return fmt.Errorf("update PATH: %w", err)
	}
	return nil
}

// Fail emits the failure annotation for err. The caller decides the exit
// status.
func (r *Reporter) Fail(err error) {
	r.action.Errorf("%s", err.Error())
}
