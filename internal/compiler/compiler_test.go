package compiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

// sequentialIDs is a deterministic IDGenerator for tests: "id-1", "id-2", ...
type sequentialIDs struct{ n int }

func (s *sequentialIDs) NextID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

func fetchProcessServices() []workflow.ServiceMetadata {
	return []workflow.ServiceMetadata{
		{
			ID: "svc.fetch",
			Parameters: []workflow.ServiceParameter{
				{ID: "url", Type: workflow.DirectionInput, DataType: "string", Cardinality: workflow.Cardinality{Min: 1, Max: 1}},
				{ID: "body", Type: workflow.DirectionOutput, DataType: "file", FileSuffix: ".txt"},
			},
		},
		{
			ID: "svc.process",
			Parameters: []workflow.ServiceParameter{
				{ID: "in", Type: workflow.DirectionInput, DataType: "file", Cardinality: workflow.Cardinality{Min: 1, Max: 1}},
				{ID: "result", Type: workflow.DirectionOutput, DataType: "file", FileSuffix: ".json"},
			},
		},
	}
}

func TestGenerateFusesSingleProducerSingleConsumerChain(t *testing.T) {
	wf := &workflow.Workflow{
		Vars: []workflow.Variable{{ID: "urlVar", Value: "http://example.com"}},
		Actions: []workflow.Action{
			&workflow.ExecuteAction{
				ID:        "a1",
				ServiceID: "svc.fetch",
				Inputs:    []workflow.Parameter{{ID: "url", Variable: &workflow.Variable{ID: "urlVar"}}},
				Outputs:   []workflow.Parameter{{ID: "body", Variable: &workflow.Variable{ID: "bodyVar"}}},
			},
			&workflow.ExecuteAction{
				ID:        "a2",
				ServiceID: "svc.process",
				Inputs:    []workflow.Parameter{{ID: "in", Variable: &workflow.Variable{ID: "bodyVar"}}},
				Outputs:   []workflow.Parameter{{ID: "result", Variable: &workflow.Variable{ID: "resultVar"}, Store: true}},
			},
		},
	}

	c := New(wf, "/tmp/wf", "/out/wf", fetchProcessServices(), &sequentialIDs{})

	chains, err := c.Generate(nil)
	require.NoError(t, err)
	require.Len(t, chains, 1, "Generate() should fuse both actions into one chain")
	require.Len(t, chains[0].Executables, 2)

	assert.Equal(t, "svc.fetch", chains[0].Executables[0].ServiceID)
	assert.Equal(t, "svc.process", chains[0].Executables[1].ServiceID)
	assert.True(t, c.IsFinished(), "IsFinished() should be true after the only two actions were both consumed by fusion")
}

// TestGenerateSplitsOnAdapterBoundary exercises an output-adapter boundary
// on a1's output: a1 is ready and runs on its own since its output will
// never fuse into a2, but a2 must NOT be marked ready in the same round
// just because its producer is ready — a2's input bodyVar is never
// resolved at compile time (a1's output isn't materialized until the chain
// actually runs), so a2 has to wait for a1's chain to finish and feed its
// result back through the next Generate call.
func TestGenerateSplitsOnAdapterBoundary(t *testing.T) {
	wf := &workflow.Workflow{
		Vars: []workflow.Variable{{ID: "urlVar", Value: "http://example.com"}},
		Actions: []workflow.Action{
			&workflow.ExecuteAction{
				ID:        "a1",
				ServiceID: "svc.fetch",
				Inputs:    []workflow.Parameter{{ID: "url", Variable: &workflow.Variable{ID: "urlVar"}}},
				Outputs:   []workflow.Parameter{{ID: "body", Variable: &workflow.Variable{ID: "bodyVar"}}},
			},
			&workflow.ExecuteAction{
				ID:        "a2",
				ServiceID: "svc.process",
				Inputs:    []workflow.Parameter{{ID: "in", Variable: &workflow.Variable{ID: "bodyVar"}}},
				Outputs:   []workflow.Parameter{{ID: "result", Variable: &workflow.Variable{ID: "resultVar"}, Store: true}},
			},
		},
	}

	c := New(wf, "/tmp/wf", "/out/wf", fetchProcessServices(), &sequentialIDs{},
		WithOutputAdapterOracle(alwaysAdapter{}))

	chains, err := c.Generate(nil)
	require.NoError(t, err)
	require.Len(t, chains, 1, "Generate() should return a1 only; a2 deferred to the next round")
	require.Len(t, chains[0].Executables, 1)
	assert.Equal(t, "svc.fetch", chains[0].Executables[0].ServiceID)
	assert.False(t, c.IsFinished(), "IsFinished() should be false: a2 is still pending its producer's result")
}

type alwaysAdapter struct{}

func (alwaysAdapter) HasAdapterFor(string) bool { return true }

// TestGenerateLeavesUnresolvedActionPending exercises a consumer whose sole
// producer is a for-each still waiting on its own input: the consumer must
// not run ahead (and must not be mistaken for a genuinely missing input,
// which would instead fail at materialization time).
func TestGenerateLeavesUnresolvedActionPending(t *testing.T) {
	wf := &workflow.Workflow{
		Actions: []workflow.Action{
			&workflow.ForEachAction{
				ID:         "fe1",
				Input:      &workflow.Variable{ID: "listVar"},
				Enumerator: &workflow.Variable{ID: "elemVar"},
				Output:     &workflow.Variable{ID: "collected"},
			},
			&workflow.ExecuteAction{
				ID:        "a2",
				ServiceID: "svc.process",
				Inputs:    []workflow.Parameter{{ID: "in", Variable: &workflow.Variable{ID: "collected"}}},
				Outputs:   []workflow.Parameter{{ID: "result", Variable: &workflow.Variable{ID: "resultVar"}}},
			},
		},
	}
	services := []workflow.ServiceMetadata{{
		ID: "svc.process",
		Parameters: []workflow.ServiceParameter{
			{ID: "in", Type: workflow.DirectionInput, DataType: "file", Cardinality: workflow.Cardinality{Min: 1, Max: 1}},
			{ID: "result", Type: workflow.DirectionOutput, DataType: "file", FileSuffix: ".json"},
		},
	}}

	c := New(wf, "/tmp/wf", "/out/wf", services, &sequentialIDs{})
	chains, err := c.Generate(nil)
	require.NoError(t, err)
	assert.Empty(t, chains, "fe1's input is still unresolved")
	assert.False(t, c.IsFinished(), "IsFinished() should be false: both fe1 and a2 are still pending")
}

func TestIngestResultsCollapsesByCount(t *testing.T) {
	c := &Compiler{variableValues: make(map[string]any)}
	c.ingestResults(map[string][]any{
		"empty": {},
		"one":   {"solo"},
		"many":  {"a", "b"},
	})

	empty, ok := c.variableValues["empty"].([]any)
	require.True(t, ok)
	assert.Empty(t, empty)

	assert.Equal(t, "solo", c.variableValues["one"])

	many, ok := c.variableValues["many"].([]any)
	require.True(t, ok)
	assert.Len(t, many, 2)
}
