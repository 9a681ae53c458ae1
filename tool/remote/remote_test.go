package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/strix/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func TestInvokerSuccess(t *testing.T) {
	c := mocks.NewClient(t)
	run := mocks.NewWorkflowRun(t)

	c.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.TaskQueue == "tools" && o.WorkflowExecutionTimeout == 2*time.Second
	}), WorkflowName, mock.MatchedBy(func(c Call) bool {
		return c.Tool == "analysis" && c.Arguments == `{"query":"q"}` && c.TimeoutMS == 2000
	})).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		*args.Get(1).(*Outcome) = Outcome{Value: "done"}
	})

	res := NewInvoker(c, "tools").Invoke(context.Background(), "analysis", `{"query":"q"}`, 2*time.Second)
	assert.True(t, res.OK)
	assert.Equal(t, "done", res.Value)
}

func TestInvokerToolFailure(t *testing.T) {
	c := mocks.NewClient(t)
	run := mocks.NewWorkflowRun(t)

	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		*args.Get(1).(*Outcome) = Outcome{Err: tool.Errorf(tool.CodeInvalidArguments, "bad")}
	})

	res := NewInvoker(c, "").Invoke(context.Background(), "comparison", `{}`, 0)
	require.NotNil(t, res.Err)
	assert.Equal(t, tool.CodeInvalidArguments, res.Err.Code)
}

func TestInvokerErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"application error", temporal.NewApplicationError("backend down", tool.CodeUnavailable), tool.CodeUnavailable, true},
		{"non retryable application error", temporal.NewNonRetryableApplicationError("nope", "", nil), tool.CodeExecutionFailed, false},
		{"service unavailable", serviceerror.NewUnavailable("frontend down"), tool.CodeUnavailable, true},
		{"anything else", errors.New("connection reset"), tool.CodeUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mocks.NewClient(t)
			c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).Return(nil, tt.err)

			res := NewInvoker(c, "").Invoke(context.Background(), "analysis", `{}`, time.Second)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.code, res.Err.Code)
			assert.Equal(t, tt.retryable, res.Err.Retryable)
		})
	}
}

func TestInvokerCancelled(t *testing.T) {
	c := mocks.NewClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).Return(nil, context.Canceled)

	res := NewInvoker(c, "").Invoke(ctx, "analysis", `{}`, time.Second)
	require.NotNil(t, res.Err)
	assert.Equal(t, tool.CodeCancelled, res.Err.Code)
}

func TestWorkerWorkflow(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(
		tool.Must(func(q string) string { return "echo " + q }, tool.Name("echo"), tool.Parameters("query")),
		tool.Must(func() (string, error) { return "", errors.New("broken") }, tool.Name("broken")),
	))

	tests := []struct {
		name  string
		call  Call
		value string
		code  string
	}{
		{name: "success", call: Call{Tool: "echo", Arguments: `{"query":"hi"}`, TimeoutMS: 1000}, value: "echo hi"},
		{name: "tool error", call: Call{Tool: "broken", Arguments: `{}`}, code: tool.CodeExecutionFailed},
		{name: "unknown tool", call: Call{Tool: "missing", Arguments: `{}`}, code: tool.CodeUnknownTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var suite testsuite.WorkflowTestSuite
			env := suite.NewTestWorkflowEnvironment()
			NewWorker(reg).Register(env)

			env.ExecuteWorkflow(WorkflowName, tt.call)
			require.True(t, env.IsWorkflowCompleted())
			require.NoError(t, env.GetWorkflowError())

			var out Outcome
			require.NoError(t, env.GetWorkflowResult(&out))
			assert.Equal(t, tt.value, out.Value)
			if tt.code == "" {
				assert.Nil(t, out.Err)
				return
			}
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.code, out.Err.Code)
		})
	}
}
