package compiler

import (
	"fmt"
	"strconv"

	"github.com/lyzr/wfcompiler/internal/wferrors"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// unrollForEach drives phase 3 of Generate: breadth-first expansion of
// every currently resolvable pending ForEachAction, recursing into nested
// for-eachs produced by that expansion within the same call.
func (c *Compiler) unrollForEach() error {
	var queue []*workflow.ForEachAction
	for _, id := range append([]string{}, c.actionOrder...) {
		if fe, ok := c.actions[id].(*workflow.ForEachAction); ok {
			queue = append(queue, fe)
		}
	}

	for len(queue) > 0 {
		fa := queue[0]
		queue = queue[1:]

		produced, err := c.processForEach(fa)
		if err != nil {
			return err
		}
		queue = append(queue, produced...)
	}
	return nil
}

// processForEach resolves one ForEachAction's input, unrolls one round of
// iterations, and updates pending-output/recursive-buffer bookkeeping. It
// returns any nested ForEachActions minted this round so the caller can
// fold them into the same breadth-first pass.
func (c *Compiler) processForEach(fa *workflow.ForEachAction) ([]*workflow.ForEachAction, error) {
	if fa.Input == nil || fa.Enumerator == nil {
		return nil, wferrors.New(wferrors.KindInvalidWorkflow, "for-each action missing input or enumerator")
	}

	recursiveKey := fa.Input.ID + "$" + fa.Enumerator.ID

	var resolved any
	var found bool
	if v, ok := c.variableValues[recursiveKey]; ok {
		resolved, found = v, true
	} else if v, ok := c.resolveValue(fa.Input.ID); ok {
		resolved, found = v, true
	}
	if !found {
		// Leave the action pending for a later round.
		return nil, nil
	}

	elements := workflow.ToSequence(resolved)

	var nested []*workflow.ForEachAction
	var yieldedOutputs []string
	var yieldedInputs []string

	for _, elementValue := range elements {
		iteration := c.nextIteration(fa.Enumerator.ID)
		suffix := strconv.Itoa(iteration)

		elementVar := &workflow.Variable{
			ID:    fmt.Sprintf("%s$%s", fa.Enumerator.ID, suffix),
			Value: elementValue,
		}
		subst := map[string]*workflow.Variable{fa.Enumerator.ID: elementVar}

		for _, bodyAction := range fa.Actions {
			copied, err := copyAction(bodyAction, subst, suffix)
			if err != nil {
				return nil, err
			}
			c.addAction(copied)
			if fe, ok := copied.(*workflow.ForEachAction); ok {
				nested = append(nested, fe)
			}
		}

		if fa.YieldToOutput != nil {
			v, err := resolveSubstituted(fa.YieldToOutput, subst)
			if err != nil {
				return nil, wferrors.Wrap(wferrors.KindInvalidWorkflow, "unresolved yieldToOutput", err)
			}
			yieldedOutputs = append(yieldedOutputs, v.ID)
		}
		if fa.YieldToInput != nil {
			v, err := resolveSubstituted(fa.YieldToInput, subst)
			if err != nil {
				return nil, wferrors.Wrap(wferrors.KindInvalidWorkflow, "unresolved yieldToInput", err)
			}
			yieldedInputs = append(yieldedInputs, v.ID)
		}
	}

	if fa.Output != nil {
		pendingKey := fa.Output.ID + "$$"
		c.forEachOutputsToBeCollected[pendingKey] = append(c.forEachOutputsToBeCollected[pendingKey], yieldedOutputs...)
	}

	if len(yieldedInputs) == 0 {
		if pending := c.forEachOutputsToBeCollected[recursiveKey]; len(pending) > 0 {
			// More iterations may still arrive from downstream work.
			return nested, nil
		}

		c.removeAction(fa.ActionID())
		if fa.Output != nil {
			pendingKey := fa.Output.ID + "$$"
			if pend, ok := c.forEachOutputsToBeCollected[pendingKey]; ok {
				delete(c.forEachOutputsToBeCollected, pendingKey)
				c.forEachOutputsToBeCollected[fa.Output.ID] = append(c.forEachOutputsToBeCollected[fa.Output.ID], pend...)
			}
			if val, ok := c.variableValues[pendingKey]; ok {
				delete(c.variableValues, pendingKey)
				c.variableValues[fa.Output.ID] = val
			}
		}
		return nested, nil
	}

	c.variableValues[recursiveKey] = []any{}
	c.forEachOutputsToBeCollected[recursiveKey] = append(c.forEachOutputsToBeCollected[recursiveKey], yieldedInputs...)
	return nested, nil
}

// copyAction deep-copies a body action under substitution, minting a fresh
// identity and (for ExecuteAction outputs and nested ForEach enumerator/
// output ids) fresh, iteration-suffixed variable ids recorded back into
// subst so later references in the same body resolve correctly.
func copyAction(a workflow.Action, subst map[string]*workflow.Variable, suffix string) (workflow.Action, error) {
	switch t := a.(type) {
	case *workflow.ExecuteAction:
		inputs := make([]workflow.Parameter, len(t.Inputs))
		for i, p := range t.Inputs {
			inputs[i] = workflow.Parameter{
				ID:        p.ID,
				Variable:  substituteVar(p.Variable, subst),
				FieldPath: p.FieldPath,
				Prefix:    p.Prefix,
				Store:     p.Store,
			}
		}
		outputs := make([]workflow.Parameter, len(t.Outputs))
		for i, p := range t.Outputs {
			var newVar *workflow.Variable
			if p.Variable != nil {
				newVar = &workflow.Variable{ID: p.Variable.ID + "$" + suffix}
				subst[p.Variable.ID] = newVar
			}
			outputs[i] = workflow.Parameter{ID: p.ID, Variable: newVar, Prefix: p.Prefix, Store: p.Store}
		}
		return &workflow.ExecuteAction{
			ID:        t.ID + "$" + suffix,
			ServiceID: t.ServiceID,
			Inputs:    inputs,
			Outputs:   outputs,
		}, nil

	case *workflow.ForEachAction:
		newInput := substituteVar(t.Input, subst)

		var newEnum *workflow.Variable
		if t.Enumerator != nil {
			newEnum = &workflow.Variable{ID: t.Enumerator.ID + "$" + suffix}
			subst[t.Enumerator.ID] = newEnum
		}

		var newOutput *workflow.Variable
		if t.Output != nil {
			newOutput = &workflow.Variable{ID: t.Output.ID + "$" + suffix}
			subst[t.Output.ID] = newOutput
		}

		body := make([]workflow.Action, len(t.Actions))
		for i, sub := range t.Actions {
			copied, err := copyAction(sub, subst, suffix)
			if err != nil {
				return nil, err
			}
			body[i] = copied
		}

		newYieldToOutput := substituteVar(t.YieldToOutput, subst)
		newYieldToInput := substituteVar(t.YieldToInput, subst)

		return &workflow.ForEachAction{
			ID:            t.ID + "$" + suffix,
			Input:         newInput,
			Enumerator:    newEnum,
			Output:        newOutput,
			YieldToOutput: newYieldToOutput,
			YieldToInput:  newYieldToInput,
			Actions:       body,
		}, nil

	default:
		return nil, wferrors.New(wferrors.KindInvalidWorkflow, fmt.Sprintf("unsupported action variant %T", a))
	}
}

func substituteVar(v *workflow.Variable, subst map[string]*workflow.Variable) *workflow.Variable {
	if v == nil {
		return nil
	}
	if replacement, ok := subst[v.ID]; ok {
		return replacement
	}
	return v
}

func resolveSubstituted(v *workflow.Variable, subst map[string]*workflow.Variable) (*workflow.Variable, error) {
	if v == nil {
		return nil, fmt.Errorf("nil variable")
	}
	if replacement, ok := subst[v.ID]; ok {
		return replacement, nil
	}
	return nil, fmt.Errorf("no substitution recorded for %q", v.ID)
}
