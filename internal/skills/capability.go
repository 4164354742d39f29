// Package skills holds the agent's capability registry and the factory that
// can synthesize, validate and activate new capabilities at runtime.
//
// Capabilities are looked up by name only. The set of possible
// implementations is a static, compile-time provider table; learning a skill
// never generates executable code into the running process. The factory
// writes a candidate module and its test as data, validates them in an
// isolated subprocess, and on success activates the name from the provider
// table and records it in a versioned manifest loaded at the next start.
package skills

import "context"

// Capability is an invocable skill. Execute receives the step arguments,
// including a "workdir" entry pointing at the run's working directory, and
// returns an observable result map. Capabilities that produce files list
// their paths under the "artifacts" key.
type Capability interface {
	Name() string
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// argString reads an optional string argument.
func argString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
