/*
Package tool defines the tool execution backend contract and a local, reflection
based implementation of it.

An Invoker executes a named tool with JSON arguments and a per-call timeout and
always answers with a Result: either a value, or a typed Error carrying a code,
a message and whether retrying could help. Invokers never panic and never return
a Go error; failures are data so the orchestration stage can audit them.

Registry is the in-process Invoker. Tools are plain Go functions wrapped in a
Definition:

	def := tool.Must(analyze,
		tool.Name("analysis"),
		tool.Description("Word statistics and keywords of a subject"),
		tool.Parameters("subtask", "query"),
	)
	reg := tool.NewRegistry()
	reg.Register(def)

	res := reg.Invoke(ctx, "analysis", `{"subtask":"analyze x","query":"..."}`, 5*time.Second)

Parameters maps positional function parameters to JSON argument names. A leading
context.Context parameter is filled with the call's context. Return values are
rendered the same way regardless of type: strings as is, numbers and times in
their canonical text form, everything else as JSON. A returned *Error keeps its
code; any other error becomes an execution_failed error.

IntentDeriver turns the unmet subtasks of a plan into tool intents. KeywordIntents
is the default strategy, mapping verbs such as analyze or compare to tools.
*/
package tool
