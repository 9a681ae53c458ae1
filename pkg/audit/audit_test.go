package audit

import (
	"fmt"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestP95(t *testing.T) {
	tests := []struct {
		name      string
		latencies []int64
		want      int64
	}{
		{"empty", nil, 0},
		{"single", []int64{42}, 42},
		// ceil(0.95*10)-1 = 9
		{"ten values", []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, 100},
		{"unsorted", []int64{100, 10, 90, 20, 80, 30, 70, 40, 60, 50}, 100},
		// ceil(0.95*20)-1 = 18
		{"twenty values", seq(1, 20), 19},
		// ceil(0.95*3)-1 = 2
		{"three values", []int64{5, 1, 3}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, P95(tt.latencies))
		})
	}
}

func seq(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestAccumulator_Round(t *testing.T) {
	acc := New()
	for i := int64(1); i <= 10; i++ {
		acc.Record(Record{Tool: "analysis", Success: true, LatencyMS: i * 10, Round: 1})
	}

	ra := acc.Round(1)
	assert.Equal(t, 1, ra.Round)
	assert.Equal(t, 10, ra.Count)
	assert.Equal(t, 10, ra.SuccessCount)
	assert.Equal(t, 0, ra.FailureCount)
	assert.Equal(t, 1.0, ra.SuccessRate)
	assert.Equal(t, 55.0, ra.AvgLatencyMS)
	assert.Equal(t, int64(100), ra.P95LatencyMS)
	assert.Equal(t, int64(550), ra.TotalMS)
	assert.Equal(t, []string{"analysis"}, ra.Tools)
	assert.Empty(t, ra.Failures)

	empty := acc.Round(7)
	assert.Equal(t, 7, empty.Round)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.P95LatencyMS)
}

func TestAccumulator_Aggregate(t *testing.T) {
	acc := New()
	acc.Record(Record{Tool: "comparison", Success: true, LatencyMS: 30, Round: 2})
	acc.Record(Record{Tool: "analysis", Success: true, LatencyMS: 10, Round: 1})
	acc.Record(Record{Tool: "memory.read", Success: false, Error: "timeout", LatencyMS: 50, Round: 1})
	acc.Record(Record{Tool: "analysis", Success: true, LatencyMS: 20, Round: 2})

	agg := acc.Aggregate()
	assert.Equal(t, 4, agg.Count)
	assert.Equal(t, 3, agg.SuccessCount)
	assert.Equal(t, 1, agg.FailureCount)
	assert.Equal(t, 0.75, agg.SuccessRate)
	assert.Equal(t, []string{"comparison", "analysis", "memory.read"}, agg.Tools)
	assert.Equal(t, []string{"memory.read: timeout"}, agg.Failures)

	require.Len(t, agg.Rounds, 2)
	assert.Equal(t, 1, agg.Rounds[0].Round)
	assert.Equal(t, 2, agg.Rounds[0].Count)
	assert.Equal(t, 0.5, agg.Rounds[0].SuccessRate)
	assert.Equal(t, 2, agg.Rounds[1].Round)

	var keys []string
	for pair := agg.ToolUsage.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, fmt.Sprintf("%s=%d", pair.Key, pair.Value))
	}
	assert.Equal(t, []string{"comparison=1", "analysis=2", "memory.read=1"}, keys)

	data, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.GetBytes(data, "tool_usage.analysis").Int())
	assert.Equal(t, int64(4), gjson.GetBytes(data, "count").Int())
	assert.Equal(t, int64(2), gjson.GetBytes(data, "rounds.#").Int())
}

func TestAccumulator_Concurrent(t *testing.T) {
	acc := New()
	var wg sync.WaitGroup
	for r := 1; r <= 4; r++ {
		for i := range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acc.Record(Record{Tool: "analysis", Success: i%5 != 0, LatencyMS: int64(i), Round: r})
				_ = acc.Aggregate()
			}()
		}
	}
	wg.Wait()

	agg := acc.Aggregate()
	assert.Equal(t, 100, agg.Count)
	assert.Equal(t, 20, agg.FailureCount)
	assert.Len(t, agg.Rounds, 4)
	assert.Equal(t, 100, acc.Len())
	assert.Len(t, acc.Records(), 100)
}
