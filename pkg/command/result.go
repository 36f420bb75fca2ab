package command

import (
	"encoding/json"

	"github.com/quantumnode/gateway/pkg/domain"
)

// Result is what a command handler returns. Data keys are flattened into the
// top level of the response envelope next to ok and error.
type Result struct {
	OK       bool
	Error    string
	Required []string
	Missing  []string
	Data     map[string]any
}

// OK builds a successful Result carrying data.
func OK(data map[string]any) Result {
	return Result{OK: true, Data: data}
}

// Fail builds a failed Result with a machine-readable error code.
func Fail(code string) Result {
	return Result{Error: code}
}

// NotFound is shorthand for Fail(domain.CodeNotFound) with extra context.
func NotFound(data map[string]any) Result {
	return Result{Error: domain.CodeNotFound, Data: data}
}

// Fields renders the Result as a flat map.
func (r Result) Fields() map[string]any {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out["ok"] = r.OK
	if r.Error != "" {
		out["error"] = r.Error
	}
	if len(r.Required) > 0 {
		out["required"] = r.Required
	}
	if len(r.Missing) > 0 {
		out["missing"] = r.Missing
	}
	return out
}

// MarshalJSON encodes the flattened form.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// Requirements collects presence checks for a handler's inputs.
//
//	if res, failed := command.Require().
//		Field("name", in.Name != "").
//		Field("email", in.Email != "").
//		Failed(); failed {
//		return res, nil
//	}
type Requirements struct {
	required []string
	missing  []string
	code     string
}

// Require starts an empty set of checks that fails with missing_fields.
func Require() *Requirements {
	return &Requirements{code: domain.CodeMissingFields}
}

// RequireIdentifier starts checks that fail with missing_identifier.
func RequireIdentifier() *Requirements {
	return &Requirements{code: domain.CodeMissingID}
}

// Field records a required field and whether it was supplied. Alternatives
// are named with "or", e.g. "username or domain".
func (r *Requirements) Field(name string, present bool) *Requirements {
	r.required = append(r.required, name)
	if !present {
		r.missing = append(r.missing, name)
	}
	return r
}

// Failed returns the failure Result when any required field is absent.
func (r *Requirements) Failed() (Result, bool) {
	if len(r.missing) == 0 {
		return Result{}, false
	}
	return Result{Error: r.code, Required: r.required, Missing: r.missing}, true
}

// MissingField fails with missing_<field> for single-argument commands.
func MissingField(field string) Result {
	return Fail(domain.MissingField(field))
}
