package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

// State is the opaque, serializable blob SaveState/LoadState exchange.
// Field names are load-bearing: external callers persist this verbatim and
// must be able to round-trip it across process restarts.
type State struct {
	Vars                        []workflow.Variable `json:"vars"`
	Actions                     json.RawMessage      `json:"actions"`
	VariableValues              map[string]any       `json:"variableValues"`
	ForEachOutputsToBeCollected map[string][]string   `json:"forEachOutputsToBeCollected"`
	Iterations                  map[string]int        `json:"iterations"`
}

// SaveState captures the compiler's full mutable state as an opaque blob.
func (c *Compiler) SaveState() ([]byte, error) {
	actions := make([]workflow.Action, 0, len(c.actionOrder))
	for _, id := range c.actionOrder {
		actions = append(actions, c.actions[id])
	}
	rawActions, err := workflow.MarshalActions(actions)
	if err != nil {
		return nil, fmt.Errorf("save compiler state: %w", err)
	}

	vars := make([]workflow.Variable, 0, len(c.varOrder))
	for _, id := range c.varOrder {
		vars = append(vars, *c.vars[id])
	}

	st := State{
		Vars:                        vars,
		Actions:                     rawActions,
		VariableValues:              c.variableValues,
		ForEachOutputsToBeCollected: c.forEachOutputsToBeCollected,
		Iterations:                  c.iterations,
	}
	blob, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("save compiler state: %w", err)
	}
	return blob, nil
}

// LoadState overwrites the compiler's mutable state from a blob previously
// produced by SaveState. The workflow, tmpPath, outPath, services, oracle
// and idGenerator supplied to New are left untouched.
func (c *Compiler) LoadState(blob []byte) error {
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("load compiler state: %w", err)
	}

	actions, err := workflow.UnmarshalActions(st.Actions)
	if err != nil {
		return fmt.Errorf("load compiler state: %w", err)
	}

	c.vars = make(map[string]*workflow.Variable, len(st.Vars))
	c.varOrder = c.varOrder[:0]
	for i := range st.Vars {
		v := st.Vars[i]
		c.vars[v.ID] = &v
		c.varOrder = append(c.varOrder, v.ID)
	}

	c.actions = make(map[string]workflow.Action, len(actions))
	c.actionOrder = c.actionOrder[:0]
	for _, a := range actions {
		c.addAction(a)
	}

	c.variableValues = st.VariableValues
	if c.variableValues == nil {
		c.variableValues = make(map[string]any)
	}
	c.forEachOutputsToBeCollected = st.ForEachOutputsToBeCollected
	if c.forEachOutputsToBeCollected == nil {
		c.forEachOutputsToBeCollected = make(map[string][]string)
	}
	c.iterations = st.Iterations
	if c.iterations == nil {
		c.iterations = make(map[string]int)
	}
	return nil
}
