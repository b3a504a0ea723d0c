package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Sentinel errors for template operations.
var (
	// ErrEmptyTemplate is returned when compiling an empty expression.
	ErrEmptyTemplate = errors.New("template: expression is empty")

	// ErrCompile is returned when an expression fails to compile.
	ErrCompile = errors.New("template: compilation failed")

	// ErrRender is returned when a compiled expression fails at run time.
	ErrRender = errors.New("template: render failed")
)

// Template is a compiled value template.
//
// Thread Safety: Render is safe for concurrent use.
type Template struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks an expression.
//
// Parameters:
//   - source: Expression text, e.g. `value_json.state == "on"`
//
// Returns:
//   - *Template: Compiled template ready to render
//   - error: ErrEmptyTemplate or ErrCompile
func Compile(source string) (*Template, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptyTemplate
	}

	program, err := expr.Compile(source, expr.Env(Env{}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	return &Template{source: source, program: program}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level defaults.
func MustCompile(source string) *Template {
	t, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return t
}

// Source returns the expression text the template was compiled from.
func (t *Template) Source() string {
	return t.source
}

// Render evaluates the template against a payload.
//
// The payload is exposed as `value`; if it parses as JSON the decoded form is
// exposed as `value_json`, otherwise `value_json` is nil. A nil result renders
// as the empty string.
//
// Parameters:
//   - payload: Raw text to evaluate against
//
// Returns:
//   - string: The rendered value
//   - error: ErrRender if evaluation fails
func (t *Template) Render(payload string) (string, error) {
	out, err := expr.Run(t.program, Env{Value: payload, ValueJSON: decodeJSON(payload)})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	if out == nil {
		return "", nil
	}
	return fmt.Sprint(out), nil
}

// Env is the variable set seen by an expression.
type Env struct {
	Value     string `expr:"value"`
	ValueJSON any    `expr:"value_json"`
}

// decodeJSON returns the decoded payload, or nil if it is not valid JSON.
func decodeJSON(payload string) any {
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil
	}
	return v
}
