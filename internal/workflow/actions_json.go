package workflow

import (
	"encoding/json"
	"fmt"
)

// actionEnvelope is the on-wire representation of a polymorphic Action,
// used for SaveState/LoadState and Workflow JSON round-tripping.
type actionEnvelope struct {
	Kind    ActionKind       `json:"kind"`
	Execute *ExecuteAction   `json:"execute,omitempty"`
	ForEach *forEachWire     `json:"forEach,omitempty"`
}

// forEachWire mirrors ForEachAction but with Actions re-typed to the
// envelope so nested bodies round-trip recursively.
type forEachWire struct {
	ID            string      `json:"id"`
	Input         *Variable   `json:"input"`
	Enumerator    *Variable   `json:"enumerator"`
	Output        *Variable   `json:"output,omitempty"`
	YieldToOutput *Variable   `json:"yieldToOutput,omitempty"`
	YieldToInput  *Variable   `json:"yieldToInput,omitempty"`
	Actions       []json.RawMessage `json:"actions"`
}

// MarshalActions serializes an ordered action sequence losslessly.
func MarshalActions(actions []Action) ([]byte, error) {
	envs := make([]json.RawMessage, len(actions))
	for i, a := range actions {
		raw, err := marshalOne(a)
		if err != nil {
			return nil, fmt.Errorf("marshal action %s: %w", a.ActionID(), err)
		}
		envs[i] = raw
	}
	return json.Marshal(envs)
}

func marshalOne(a Action) (json.RawMessage, error) {
	switch t := a.(type) {
	case *ExecuteAction:
		return json.Marshal(actionEnvelope{Kind: ActionKindExecute, Execute: t})
	case *ForEachAction:
		body := make([]json.RawMessage, len(t.Actions))
		for i, sub := range t.Actions {
			raw, err := marshalOne(sub)
			if err != nil {
				return nil, err
			}
			body[i] = raw
		}
		return json.Marshal(actionEnvelope{Kind: ActionKindForEach, ForEach: &forEachWire{
			ID:            t.ID,
			Input:         t.Input,
			Enumerator:    t.Enumerator,
			Output:        t.Output,
			YieldToOutput: t.YieldToOutput,
			YieldToInput:  t.YieldToInput,
			Actions:       body,
		}})
	default:
		return nil, fmt.Errorf("unsupported action variant %T", a)
	}
}

// UnmarshalActions deserializes an ordered action sequence produced by
// MarshalActions.
func UnmarshalActions(data []byte) ([]Action, error) {
	var envs []json.RawMessage
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, fmt.Errorf("unmarshal action list: %w", err)
	}
	out := make([]Action, len(envs))
	for i, raw := range envs {
		a, err := unmarshalOne(raw)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// MarshalJSON makes Workflow itself round-trip through encoding/json despite
// its Actions field being a slice of interfaces.
func (w Workflow) MarshalJSON() ([]byte, error) {
	rawActions, err := MarshalActions(w.Actions)
	if err != nil {
		return nil, err
	}
	aux := struct {
		Vars    []Variable      `json:"vars"`
		Actions json.RawMessage `json:"actions"`
	}{Vars: w.Vars, Actions: rawActions}
	return json.Marshal(aux)
}

// UnmarshalJSON is the counterpart to MarshalJSON.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var aux struct {
		Vars    []Variable      `json:"vars"`
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshal workflow: %w", err)
	}
	actions, err := UnmarshalActions(aux.Actions)
	if err != nil {
		return err
	}
	w.Vars = aux.Vars
	w.Actions = actions
	return nil
}

func unmarshalOne(raw json.RawMessage) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal action envelope: %w", err)
	}
	switch env.Kind {
	case ActionKindExecute:
		if env.Execute == nil {
			return nil, fmt.Errorf("execute envelope missing payload")
		}
		return env.Execute, nil
	case ActionKindForEach:
		if env.ForEach == nil {
			return nil, fmt.Errorf("forEach envelope missing payload")
		}
		body := make([]Action, len(env.ForEach.Actions))
		for i, subRaw := range env.ForEach.Actions {
			sub, err := unmarshalOne(subRaw)
			if err != nil {
				return nil, err
			}
			body[i] = sub
		}
		return &ForEachAction{
			ID:            env.ForEach.ID,
			Input:         env.ForEach.Input,
			Enumerator:    env.ForEach.Enumerator,
			Output:        env.ForEach.Output,
			YieldToOutput: env.ForEach.YieldToOutput,
			YieldToInput:  env.ForEach.YieldToInput,
			Actions:       body,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported action variant %q", env.Kind)
	}
}
