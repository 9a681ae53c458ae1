// Package remote runs tool calls as Temporal workflows so tools can live on
// their own workers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/casualjim/strix/tool"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// WorkflowName is the registered name of the tool workflow.
	WorkflowName = "strix.tool.invoke"
	// ActivityName is the registered name of the activity executing the tool.
	ActivityName = "strix.tool.call"
	// DefaultTaskQueue is the task queue tool workers poll.
	DefaultTaskQueue = "strix-tools"
	// DefaultTimeout bounds calls made without a timeout.
	DefaultTimeout = time.Minute
)

// Call is the workflow input.
type Call struct {
	RunID     string `json:"run_id,omitempty"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	TimeoutMS int64  `json:"timeout_ms"`
}

func (c Call) timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Outcome is the workflow result. Tool failures travel in Err instead of as a
// workflow error so Temporal does not retry them.
type Outcome struct {
	Value string      `json:"value,omitempty"`
	Err   *tool.Error `json:"error,omitempty"`
}

// NewInvoker creates a tool.Invoker that starts one workflow per call.
func NewInvoker(c client.Client, taskQueue string) *Invoker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Invoker{client: c, taskQueue: taskQueue}
}

// Invoker dispatches tool calls to Temporal workers.
type Invoker struct {
	client    client.Client
	taskQueue string
}

func (i *Invoker) Invoke(ctx context.Context, name, args string, timeout time.Duration) tool.Result {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call := Call{Tool: name, Arguments: args, TimeoutMS: timeout.Milliseconds()}
	run, err := i.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("tool-%s-%s", name, uuidx.NewString()),
		TaskQueue:                i.taskQueue,
		WorkflowExecutionTimeout: timeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, WorkflowName, call)
	if err != nil {
		return tool.Failure(classify(ctx, err), time.Since(start))
	}

	var out Outcome
	if err := run.Get(ctx, &out); err != nil {
		return tool.Failure(classify(ctx, err), time.Since(start))
	}
	if out.Err != nil {
		return tool.Failure(out.Err, time.Since(start))
	}
	return tool.Success(out.Value, time.Since(start))
}

func classify(ctx context.Context, err error) *tool.Error {
	if te := tool.ContextError(ctx); te != nil {
		return te
	}

	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &tool.Error{Code: tool.CodeTimeout, Message: timeoutErr.Error(), Retryable: true}
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		code := appErr.Type()
		if code == "" {
			code = tool.CodeExecutionFailed
		}
		return &tool.Error{Code: code, Message: appErr.Error(), Retryable: !appErr.NonRetryable()}
	}
	var unavailable *serviceerror.Unavailable
	if errors.As(err, &unavailable) {
		return &tool.Error{Code: tool.CodeUnavailable, Message: unavailable.Error(), Retryable: true}
	}
	return &tool.Error{Code: tool.CodeUnavailable, Message: err.Error(), Retryable: true}
}

// Registry is the part of a Temporal worker the tool workflow registers with.
type Registry interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// NewWorker wraps the invoker that actually executes tools on the worker side,
// usually a *tool.Registry.
func NewWorker(invoker tool.Invoker) *Worker {
	return &Worker{invoker: invoker}
}

// Worker hosts the tool workflow and activity.
type Worker struct {
	invoker tool.Invoker
}

// Register adds the workflow and activity to r.
func (w *Worker) Register(r Registry) {
	r.RegisterWorkflowWithOptions(w.Invoke, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(w.CallTool, activity.RegisterOptions{Name: ActivityName})
}

// Invoke is the tool workflow.
func (w *Worker) Invoke(ctx workflow.Context, call Call) (Outcome, error) {
	log := workflow.GetLogger(ctx)
	log.Info("invoking tool", "tool", call.Tool)

	cctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    call.timeout() + time.Second,
		ScheduleToStartTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			MaximumInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    2,
		},
	})

	var out Outcome
	if err := workflow.ExecuteActivity(cctx, ActivityName, call).Get(ctx, &out); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// CallTool is the activity running the tool through the local invoker.
func (w *Worker) CallTool(ctx context.Context, call Call) (Outcome, error) {
	log := activity.GetLogger(ctx)
	log.Info("calling tool", "tool", call.Tool)

	res := w.invoker.Invoke(ctx, call.Tool, call.Arguments, call.timeout())
	if res.OK {
		return Outcome{Value: res.Value}, nil
	}
	if res.Err != nil && res.Err.Retryable && res.Err.Code != tool.CodeTimeout {
		slog.WarnContext(ctx, "retryable tool failure", slog.String("tool", call.Tool), slogx.Error(res.Err))
		return Outcome{}, temporal.NewApplicationError(res.Err.Message, res.Err.Code)
	}
	return Outcome{Err: res.Err}, nil
}
