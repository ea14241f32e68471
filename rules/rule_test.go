package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/songzhibin97/workflow-steps/types"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	t.Run("Caching by shape", func(t *testing.T) {
		record := map[string]interface{}{"points": 240}

		result1, err1 := evaluator.Evaluate(pointsBetween(), record)
		assert.NoError(t, err1)
		assert.True(t, result1)

		// Same shape, different values: the compiled program is reused.
		other := types.And(
			types.Compare("points", types.OpGt, "500"),
			types.Compare("points", types.OpLe, "600"),
		)
		result2, err2 := evaluator.Evaluate(other, record)
		assert.NoError(t, err2)
		assert.False(t, result2)

		assert.Equal(t, 1, evaluator.CacheSize())
	})

	t.Run("Attribute names are quoted", func(t *testing.T) {
		expr := types.Compare(`card "tier"`, types.OpEq, "gold")
		result, err := evaluator.Evaluate(expr, map[string]interface{}{`card "tier"`: "gold"})
		assert.NoError(t, err)
		assert.True(t, result)
	})

	t.Run("Record is not modified", func(t *testing.T) {
		e := NewExprEvaluator()
		e.AddOptionFunc("doubled", func(record map[string]interface{}) interface{} {
			n, _ := ToNumber(record["points"])
			return n * 2
		})
		record := map[string]interface{}{"points": 300}

		result, err := e.Evaluate(types.Compare("doubled", types.OpEq, 600), record)
		assert.NoError(t, err)
		assert.True(t, result)
		assert.NotContains(t, record, "doubled")
	})

	// Test concurrency: Multiple goroutines evaluating expressions
	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 100
		record := map[string]interface{}{"points": 42}

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				result, err := evaluator.Evaluate(types.Compare("points", types.OpGt, 0), record)
				assert.NoError(t, err)
				assert.True(t, result)
			}()
		}
		wg.Wait()
	})
}

// BenchmarkEvaluate compares both evaluators on the same condition tree.
func BenchmarkEvaluate(b *testing.B) {
	record := map[string]interface{}{"points": 240}
	for name, evaluator := range evaluators() {
		b.Run(name, func(b *testing.B) {
			expr := pointsBetween()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = evaluator.Evaluate(expr, record)
			}
		})
	}
}
