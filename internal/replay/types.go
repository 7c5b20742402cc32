// Package replay runs scripted operation sequences against a guard.
package replay

import "github.com/solatis/mutguard/internal/guard"

// Operation names accepted in scripts.
const (
	OpGet     = "get"
	OpSet     = "set"
	OpSetPath = "setPath"
	OpDelete  = "delete"
	OpInvoke  = "invoke"
	OpFreeze  = "freeze"
	OpReset   = "reset"
)

// Expectation values for Step.Expect.
const (
	ExpectOK    = "ok"
	ExpectError = "error"
)

// Step is one operation in a script.
type Step struct {
	Op     string `yaml:"op"`
	Path   string `yaml:"path,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Method string `yaml:"method,omitempty"`
	Args   []any  `yaml:"args,omitempty"`
	Expect string `yaml:"expect,omitempty"`
}

// ScriptOptions overrides guard options for one script. Unset fields keep
// the configured defaults.
type ScriptOptions struct {
	StrictMode         *bool   `yaml:"strictMode,omitempty"`
	TrackHistory       *bool   `yaml:"trackHistory,omitempty"`
	AllowReset         *bool   `yaml:"allowReset,omitempty"`
	AutoFreeze         *bool   `yaml:"autoFreeze,omitempty"`
	TrackDeepMutations *bool   `yaml:"trackDeepMutations,omitempty"`
	ErrorMessage       *string `yaml:"errorMessage,omitempty"`
}

// Script is a named initial value plus the steps to apply to it.
type Script struct {
	Name         string        `yaml:"name"`
	Value        any           `yaml:"value"`
	MaxMutations *int          `yaml:"maxMutations,omitempty"`
	Options      ScriptOptions `yaml:"options,omitempty"`
	Steps        []Step        `yaml:"steps"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index         int    `json:"index"`
	Op            string `json:"op"`
	Path          string `json:"path,omitempty"`
	Expected      string `json:"expected,omitempty"`
	Actual        string `json:"actual"`
	Passed        bool   `json:"passed"`
	Error         string `json:"error,omitempty"`
	Result        any    `json:"result,omitempty"`
	MutationCount int    `json:"mutationCount"`
}

// Callbacks counts callback invocations over a run.
type Callbacks struct {
	Mutate        int `json:"onMutate"`
	Violation     int `json:"onViolation"`
	LastMutation  int `json:"onLastMutation"`
	LimitExceeded int `json:"onLimitExceeded"`
}

// RunResult is the outcome of running one script.
type RunResult struct {
	File      string         `json:"file,omitempty"`
	Name      string         `json:"name"`
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Steps     []StepResult   `json:"steps"`
	Callbacks Callbacks      `json:"callbacks"`
	Snapshot  guard.Snapshot `json:"snapshot"`
}
