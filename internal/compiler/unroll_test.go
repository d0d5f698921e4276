package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

func passthroughService() []workflow.ServiceMetadata {
	return []workflow.ServiceMetadata{{
		ID: "svc.echo",
		Parameters: []workflow.ServiceParameter{
			{ID: "in", Type: workflow.DirectionInput, DataType: "string", Cardinality: workflow.Cardinality{Min: 1, Max: 1}},
			{ID: "out", Type: workflow.DirectionOutput, DataType: "string", FileSuffix: ".txt"},
		},
	}}
}

// TestUnrollForEachMintsOneIterationPerElement covers the basic for-each
// unrolling case: a literal 3-element input unrolls into three copies of
// the body, each with an iteration-suffixed enumerator and output id.
func TestUnrollForEachMintsOneIterationPerElement(t *testing.T) {
	wf := &workflow.Workflow{
		Vars: []workflow.Variable{{ID: "listVar", Value: []any{"a", "b", "c"}}},
		Actions: []workflow.Action{
			&workflow.ForEachAction{
				ID:         "fe1",
				Input:      &workflow.Variable{ID: "listVar"},
				Enumerator: &workflow.Variable{ID: "elemVar"},
				Output:     &workflow.Variable{ID: "collected"},
				Actions: []workflow.Action{
					&workflow.ExecuteAction{
						ID:        "body1",
						ServiceID: "svc.echo",
						Inputs:    []workflow.Parameter{{ID: "in", Variable: &workflow.Variable{ID: "elemVar"}}},
						Outputs:   []workflow.Parameter{{ID: "out", Variable: &workflow.Variable{ID: "bodyOut"}}},
					},
				},
				YieldToOutput: &workflow.Variable{ID: "bodyOut"},
			},
		},
	}

	c := New(wf, "/tmp/wf", "/out/wf", passthroughService(), &sequentialIDs{})
	require.NoError(t, c.unrollForEach())

	var execIDs []string
	for _, id := range c.actionOrder {
		if ea, ok := c.actions[id].(*workflow.ExecuteAction); ok {
			execIDs = append(execIDs, ea.ID)
		}
	}
	require.Len(t, execIDs, 3, "unrollForEach() should produce one ExecuteAction per element")

	want := map[string]bool{"body1$0": true, "body1$1": true, "body1$2": true}
	for _, id := range execIDs {
		assert.Truef(t, want[id], "unexpected unrolled action id %q", id)
	}

	// The for-each action itself must be retired: every iteration yielded
	// to its output with no recursive yieldToInput, so there's nothing left
	// to wait on.
	_, stillPending := c.actions["fe1"]
	assert.False(t, stillPending, "fe1 is still pending after unrolling a fully-resolved literal input")
}

// TestUnrollForEachZeroIterationsYieldsEmptySequence covers a for-each over
// an already-resolved but empty input: it must retire immediately (nothing
// to wait on) and its Output must collapse to an empty sequence once
// collected, not nil — nil would read as "never yielded" instead of
// "yielded zero elements".
func TestUnrollForEachZeroIterationsYieldsEmptySequence(t *testing.T) {
	wf := &workflow.Workflow{
		Vars: []workflow.Variable{{ID: "listVar", Value: []any{}}},
		Actions: []workflow.Action{
			&workflow.ForEachAction{
				ID:         "fe1",
				Input:      &workflow.Variable{ID: "listVar"},
				Enumerator: &workflow.Variable{ID: "elemVar"},
				Output:     &workflow.Variable{ID: "collected"},
				Actions: []workflow.Action{
					&workflow.ExecuteAction{
						ID:        "body1",
						ServiceID: "svc.echo",
						Inputs:    []workflow.Parameter{{ID: "in", Variable: &workflow.Variable{ID: "elemVar"}}},
						Outputs:   []workflow.Parameter{{ID: "out", Variable: &workflow.Variable{ID: "bodyOut"}}},
					},
				},
				YieldToOutput: &workflow.Variable{ID: "bodyOut"},
			},
		},
	}

	c := New(wf, "/tmp/wf", "/out/wf", passthroughService(), &sequentialIDs{})
	require.NoError(t, c.unrollForEach())

	_, stillPending := c.actions["fe1"]
	assert.False(t, stillPending, "fe1 is still pending despite unrolling over an empty (but resolved) input")

	c.collectForEachOutputsFixpoint()
	got, ok := c.variableValues["collected"].([]any)
	require.Truef(t, ok, "variableValues[collected] = %v (%T), want []any", c.variableValues["collected"], c.variableValues["collected"])
	assert.Empty(t, got, "variableValues[collected] should be an empty sequence")
}

// TestUnrollForEachLeavesUnresolvedInputPending ensures a for-each whose
// input has no value yet (e.g. awaiting a prior round's result) is left
// untouched rather than erroring.
func TestUnrollForEachLeavesUnresolvedInputPending(t *testing.T) {
	wf := &workflow.Workflow{
		Actions: []workflow.Action{
			&workflow.ForEachAction{
				ID:         "fe1",
				Input:      &workflow.Variable{ID: "listVar"},
				Enumerator: &workflow.Variable{ID: "elemVar"},
			},
		},
	}
	c := New(wf, "/tmp/wf", "/out/wf", nil, &sequentialIDs{})
	require.NoError(t, c.unrollForEach())

	_, stillPending := c.actions["fe1"]
	assert.True(t, stillPending, "fe1 was retired despite its input never having been resolved")
	assert.Equal(t, 0, c.iterations["elemVar"], "iteration counter should not advance when no elements were processed")
}
