package compiler

import (
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

// TestSaveLoadStateRoundTrip checks SaveState;LoadState;SaveState converges:
// the second blob must be structurally identical to the first, independent
// of any incidental key-ordering produced by map iteration. A plain byte
// comparison would be flaky for that reason, so this diffs structurally via
// jsonpatch instead of comparing strings.
func TestSaveLoadStateRoundTrip(t *testing.T) {
	wf := &workflow.Workflow{
		Vars: []workflow.Variable{{ID: "urlVar", Value: "http://example.com"}},
		Actions: []workflow.Action{
			&workflow.ExecuteAction{
				ID:        "a1",
				ServiceID: "svc.fetch",
				Inputs:    []workflow.Parameter{{ID: "url", Variable: &workflow.Variable{ID: "urlVar"}}},
				Outputs:   []workflow.Parameter{{ID: "body", Variable: &workflow.Variable{ID: "bodyVar"}}},
			},
		},
	}
	services := []workflow.ServiceMetadata{{
		ID: "svc.fetch",
		Parameters: []workflow.ServiceParameter{
			{ID: "url", Type: workflow.DirectionInput, DataType: "string", Cardinality: workflow.Cardinality{Min: 1, Max: 1}},
			{ID: "body", Type: workflow.DirectionOutput, DataType: "file", FileSuffix: ".txt"},
		},
	}}

	c := New(wf, "/tmp/wf", "/out/wf", services, &sequentialIDs{})
	c.variableValues["scratch"] = map[string]any{"k": "v"}
	c.forEachOutputsToBeCollected["pending$$"] = []string{"x$0", "x$1"}
	c.iterations["elemVar"] = 2

	first, err := c.SaveState()
	require.NoError(t, err)

	restored := New(wf, "/tmp/wf", "/out/wf", services, &sequentialIDs{})
	require.NoError(t, restored.LoadState(first))

	second, err := restored.SaveState()
	require.NoError(t, err)

	diff, err := jsonpatch.CreateMergePatch(first, second)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(diff), "Save;Load;Save should be idempotent")

	assert.Equal(t, 2, restored.iterations["elemVar"])
	assert.Len(t, restored.forEachOutputsToBeCollected["pending$$"], 2)
}
