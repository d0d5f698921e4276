package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalActionsRoundTrip(t *testing.T) {
	original := []Action{
		&ExecuteAction{
			ID:        "a1",
			ServiceID: "svc.fetch",
			Inputs: []Parameter{
				{ID: "url", Variable: &Variable{ID: "urlVar", Value: "http://example.com"}},
			},
			Outputs: []Parameter{
				{ID: "body", Variable: &Variable{ID: "bodyVar"}, Store: true},
			},
		},
		&ForEachAction{
			ID:         "fe1",
			Input:      &Variable{ID: "listVar"},
			Enumerator: &Variable{ID: "elemVar"},
			Output:     &Variable{ID: "outVar"},
			Actions: []Action{
				&ExecuteAction{
					ID:        "a2",
					ServiceID: "svc.process",
					Inputs:    []Parameter{{ID: "in", Variable: &Variable{ID: "elemVar"}}},
					Outputs:   []Parameter{{ID: "out", Variable: &Variable{ID: "innerOut"}}},
				},
			},
		},
	}

	blob, err := MarshalActions(original)
	require.NoError(t, err)

	restored, err := UnmarshalActions(blob)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	ea, ok := restored[0].(*ExecuteAction)
	require.Truef(t, ok, "restored[0] = %T, want *ExecuteAction", restored[0])
	assert.Equal(t, "a1", ea.ID)
	assert.Equal(t, "svc.fetch", ea.ServiceID)

	fe, ok := restored[1].(*ForEachAction)
	require.Truef(t, ok, "restored[1] = %T, want *ForEachAction", restored[1])
	assert.Equal(t, "fe1", fe.ID)
	require.Len(t, fe.Actions, 1)

	nested, ok := fe.Actions[0].(*ExecuteAction)
	require.Truef(t, ok, "restored nested action = %T, want *ExecuteAction", fe.Actions[0])
	assert.Equal(t, "a2", nested.ID)
}

func TestWorkflowJSONRoundTrip(t *testing.T) {
	wf := Workflow{
		Vars: []Variable{{ID: "v1", Value: "literal"}},
		Actions: []Action{
			&ExecuteAction{ID: "a1", ServiceID: "svc.a"},
		},
	}

	blob, err := json.Marshal(wf)
	require.NoError(t, err)

	var restored Workflow
	require.NoError(t, json.Unmarshal(blob, &restored))

	require.Len(t, restored.Vars, 1)
	assert.Equal(t, "v1", restored.Vars[0].ID)
	require.Len(t, restored.Actions, 1)
	assert.Equal(t, "a1", restored.Actions[0].ActionID())
}
