// Package executor runs a request through the FAST or DEEP pipeline.
//
// A pipeline is an ordered list of stages sharing one runstate.Context. The
// Runner executes them one after the other:
//
//   - a failing non-critical stage is logged and its Recover installs a safe
//     default, so history, file, retrieval and tool failures never end a run
//   - a failing critical stage (answer, synthesis, final) emits the terminal
//     error envelope and the run returns a *StageError
//   - a panic inside a stage is treated like an error returned by it
//
// FAST:
//
//	start → history → files → rag → answer → persist → final
//
// DEEP:
//
//	start → history → files → rag → plan → loop{reasoning → tools → verification → reflection} → synthesis → persist → final
//
// Persistence and telemetry are fire-and-forget. They run detached from the
// caller's context, so a caller that goes away neither cancels nor observes
// them; Drain waits for them on shutdown.
//
// Example usage:
//
//	exec, err := executor.New(executor.Deps{Provider: model}, executor.DefaultSettings())
//	if err != nil {
//	    return err
//	}
//	res, err := exec.Run(ctx, runstate.Request{Question: "why is the sky blue?"}, events.LoggingHook())
package executor
