package tool

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/tidwall/gjson"
)

// NewRegistry creates an empty in-process tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: haxmap.New[string, Definition]()}
}

// Registry executes registered Go functions as tools.
type Registry struct {
	tools *haxmap.Map[string, Definition]
}

// Register adds tools, replacing any existing tool of the same name.
func (r *Registry) Register(defs ...Definition) error {
	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("tool name is required")
		}
		if _, err := New(def.Function); err != nil {
			return fmt.Errorf("tool %s: %w", def.Name, err)
		}
		r.tools.Set(def.Name, def)
	}
	return nil
}

// Lookup returns the definition of a tool.
func (r *Registry) Lookup(name string) (Definition, bool) {
	return r.tools.Get(name)
}

// Definitions returns every registered tool sorted by name.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, r.tools.Len())
	r.tools.ForEach(func(_ string, def Definition) bool {
		out = append(out, def)
		return true
	})
	slices.SortFunc(out, func(a, b Definition) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

type outcome struct {
	value string
	err   *Error
}

// Invoke implements Invoker. The call runs on its own goroutine so a timeout is
// honoured even when the function ignores its context.
func (r *Registry) Invoke(ctx context.Context, name, args string, timeout time.Duration) Result {
	start := time.Now()

	def, ok := r.tools.Get(name)
	if !ok {
		return Failure(Errorf(CodeUnknownTool, "no tool named %q", name), time.Since(start))
	}
	if args == "" {
		args = "{}"
	}
	if !gjson.Valid(args) {
		return Failure(Errorf(CodeInvalidArguments, "arguments are not valid json"), time.Since(start))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ContextError(ctx); err != nil {
		return Failure(err, time.Since(start))
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: Errorf(CodePanic, "tool %s panicked: %v", name, rec)}
			}
		}()

		callArgs, err := buildArgList(ctx, def, args)
		if err != nil {
			done <- outcome{err: Errorf(CodeInvalidArguments, "%v", err)}
			return
		}
		value, err := callFunction(def.Function, callArgs)
		if err != nil {
			done <- outcome{err: asToolError(err)}
			return
		}
		done <- outcome{value: value}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Failure(o.err, time.Since(start))
		}
		return Success(o.value, time.Since(start))
	case <-ctx.Done():
		return Failure(ContextError(ctx), time.Since(start))
	}
}
