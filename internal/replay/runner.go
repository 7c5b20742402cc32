package replay

import (
	"fmt"
	"os"

	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML script and checks step shapes.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, st := range s.Steps {
		if err := validateStep(st); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

func validateStep(st Step) error {
	switch st.Op {
	case OpGet, OpSet, OpFreeze, OpReset:
	case OpSetPath, OpDelete:
		if st.Path == "" {
			return fmt.Errorf("%s needs a path", st.Op)
		}
	case OpInvoke:
		if st.Method == "" {
			return fmt.Errorf("invoke needs a method")
		}
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	switch st.Expect {
	case "", ExpectOK, ExpectError:
	default:
		return fmt.Errorf("expect must be %q or %q, got %q", ExpectOK, ExpectError, st.Expect)
	}
	if st.Path != "" {
		if _, err := intercept.ParsePath(st.Path); err != nil {
			return err
		}
	}
	return nil
}

// Run applies every step of s to a fresh guard. base supplies defaults that
// the script's options override; defaultMax is used when the script sets no
// limit. Steps run independently: a failing step does not stop the run.
func Run(s *Script, base guard.Options, defaultMax int) (*RunResult, error) {
	result := &RunResult{Name: s.Name, Total: len(s.Steps)}

	opts := applyOptions(base, s.Options)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.OnMutate = chain(opts.OnMutate, func(guard.MutateEvent) { result.Callbacks.Mutate++ })
	opts.OnViolation = chain(opts.OnViolation, func(*types.MutationLimitExceededError) { result.Callbacks.Violation++ })
	opts.OnLastMutation = chain(opts.OnLastMutation, func(guard.LastMutationEvent) { result.Callbacks.LastMutation++ })
	opts.OnLimitExceeded = chain(opts.OnLimitExceeded, func(types.ViolationAttempt) { result.Callbacks.LimitExceeded++ })

	limit := defaultMax
	if s.MaxMutations != nil {
		limit = *s.MaxMutations
	}
	g, err := guard.New[any](s.Value, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("script %q: %w", s.Name, err)
	}

	for i, st := range s.Steps {
		res, err := apply(g, st)
		sr := StepResult{
			Index:         i + 1,
			Op:            st.Op,
			Path:          st.Path,
			Expected:      st.Expect,
			Actual:        ExpectOK,
			Result:        intercept.Snapshot(res),
			MutationCount: g.MutationCount(),
		}
		if err != nil {
			sr.Actual = ExpectError
			sr.Error = err.Error()
		}
		sr.Passed = st.Expect == "" || st.Expect == sr.Actual
		if sr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		logger.Debug("replay step",
			zap.Int("index", sr.Index),
			zap.String("op", st.Op),
			zap.String("actual", sr.Actual),
			zap.Bool("passed", sr.Passed))
		result.Steps = append(result.Steps, sr)
	}

	result.Snapshot = g.Snapshot()
	return result, nil
}

// LoadAndRun loads a script file and runs it.
func LoadAndRun(path string, base guard.Options, defaultMax int) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result, err := Run(s, base, defaultMax)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}

func apply(g *guard.Guard[any], st Step) (any, error) {
	path, err := intercept.ParsePath(st.Path)
	if err != nil {
		return nil, err
	}
	switch st.Op {
	case OpGet:
		if len(path) > 0 {
			return g.Lookup(path)
		}
		return g.Get()
	case OpSet:
		return nil, g.Set(st.Value)
	case OpSetPath:
		return nil, g.SetPath(path, st.Value)
	case OpDelete:
		return nil, g.DeletePath(path)
	case OpInvoke:
		return g.Invoke(path, st.Method, st.Args)
	case OpFreeze:
		g.Freeze()
		return nil, nil
	case OpReset:
		return nil, g.Reset()
	}
	return nil, fmt.Errorf("unknown op %q", st.Op)
}

func applyOptions(opts guard.Options, o ScriptOptions) guard.Options {
	// Script options are phrased positively; the engine's are Disable* flags.
	for dst, src := range map[*bool]*bool{
		&opts.DisableStrictMode:   o.StrictMode,
		&opts.DisableHistory:      o.TrackHistory,
		&opts.DisableAutoFreeze:   o.AutoFreeze,
		&opts.DisableDeepTracking: o.TrackDeepMutations,
	} {
		if src != nil {
			*dst = !*src
		}
	}
	if o.AllowReset != nil {
		opts.AllowReset = *o.AllowReset
	}
	if o.ErrorMessage != nil {
		opts.ErrorMessage = *o.ErrorMessage
	}
	return opts
}

// chain runs the existing callback, if any, before next.
func chain[E any](prev func(E), next func(E)) func(E) {
	if prev == nil {
		return next
	}
	return func(e E) {
		prev(e)
		next(e)
	}
}
