package compiler

import (
	"fmt"
	"path"
	"strings"

	"github.com/lyzr/wfcompiler/internal/wferrors"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// buildProcessChains is phase 4 of Generate: of the pending ExecuteActions
// whose inputs are all resolvable now (not waiting on a still-pending
// producer), fuse maximal single-producer/single-consumer runs into linear
// process chains, splitting at fan-out, fan-in, and output-adapter
// boundaries. Returns the emitted chains and the set of action ids they
// consumed, which the caller retires.
func (c *Compiler) buildProcessChains() ([]workflow.ProcessChain, map[string]bool, error) {
	readyIDs := c.readyActions()

	var ready []*workflow.ExecuteAction
	for _, id := range c.actionOrder {
		if !readyIDs[id] {
			continue
		}
		if ea, ok := c.actions[id].(*workflow.ExecuteAction); ok {
			ready = append(ready, ea)
		}
	}
	if len(ready) == 0 {
		return nil, map[string]bool{}, nil
	}

	edge, heads, err := c.planFusion(ready)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*workflow.ExecuteAction, len(ready))
	for _, a := range ready {
		byID[a.ID] = a
	}

	var chains []workflow.ProcessChain
	for _, headID := range heads {
		chain, err := c.materializeChain(headID, edge, byID)
		if err != nil {
			return nil, nil, err
		}
		chains = append(chains, chain)
	}

	consumed := make(map[string]bool, len(ready))
	for _, next := range edge {
		consumed[next] = true
	}
	for _, h := range heads {
		consumed[h] = true
	}
	return chains, consumed, nil
}

// readyActions computes the fixpoint set of ExecuteActions whose inputs are
// all satisfiable this round: either already resolvable, or produced by
// another ExecuteAction that is itself ready AND will actually be fused to
// this consumer by planFusion (so the producer's value never needs to be
// resolved at compile time — it'll exist on disk by the time the chain
// reaches its consumer). A producer whose output fans out to more than one
// consumer, crosses an output-adapter boundary, or feeds a consumer that
// itself fans in from more than one producer never fuses — planFusion
// splits there — so propagating readiness through it would leave the
// consumer's input permanently unresolved at materialization time. A
// variable still awaited from a pending ForEachAction always blocks, since
// for-each output collection only lands in variableValues once every
// iteration yielded, which can't be guaranteed within one round. A
// genuinely absent value (no producer, no literal, no prior result) never
// blocks here — it's left to fail at argument-materialization time with a
// missing-input error instead of stalling its action forever.
func (c *Compiler) readyActions() map[string]bool {
	producerOf := make(map[string]string)
	forEachProduced := make(map[string]bool)
	executeIDs := make(map[string]bool)
	for _, id := range c.actionOrder {
		switch a := c.actions[id].(type) {
		case *workflow.ExecuteAction:
			executeIDs[id] = true
			for _, out := range a.Outputs {
				if out.Variable != nil {
					producerOf[out.Variable.ID] = id
				}
			}
		case *workflow.ForEachAction:
			if a.Output != nil {
				producerOf[a.Output.ID] = id
				forEachProduced[a.Output.ID] = true
			}
		}
	}

	// consumersOf/distinctProducersOf mirror the fan-out/fan-in counts
	// planFusion itself computes, but over every still-pending ExecuteAction
	// rather than only the ready subset, so they don't depend on the
	// fixpoint below having already converged.
	consumersOf := make(map[string]map[string]bool)
	distinctProducersOf := make(map[string]map[string]bool)
	for id := range executeIDs {
		a := c.actions[id].(*workflow.ExecuteAction)
		for _, in := range a.Inputs {
			if in.Variable == nil {
				continue
			}
			if consumersOf[in.Variable.ID] == nil {
				consumersOf[in.Variable.ID] = make(map[string]bool)
			}
			consumersOf[in.Variable.ID][id] = true
			if producerID, ok := producerOf[in.Variable.ID]; ok && executeIDs[producerID] {
				if distinctProducersOf[id] == nil {
					distinctProducersOf[id] = make(map[string]bool)
				}
				distinctProducersOf[id][producerID] = true
			}
		}
	}

	// willFuse[variableID] reports whether the ExecuteAction producing this
	// variable will actually be fused to its consumer: exactly one
	// ExecuteAction consumes it, that output crosses no output-adapter
	// boundary, and the consumer has no other distinct producer feeding it
	// (a fan-in consumer accepts fusion from none of its producers).
	willFuse := make(map[string]bool)
	for varID, producerID := range producerOf {
		if !executeIDs[producerID] {
			continue // ForEachAction-produced: never fuses
		}
		consumers := consumersOf[varID]
		if len(consumers) != 1 {
			continue
		}
		var consumerID string
		for id := range consumers {
			consumerID = id
		}
		if len(distinctProducersOf[consumerID]) != 1 {
			continue
		}
		a := c.actions[producerID].(*workflow.ExecuteAction)
		svc, ok := c.serviceByID[a.ServiceID]
		if !ok {
			continue
		}
		adapterBoundary := false
		for _, out := range a.Outputs {
			if out.Variable != nil && out.Variable.ID == varID {
				if sp := findServiceParam(svc, out.ID); sp != nil && c.oracle.HasAdapterFor(sp.DataType) {
					adapterBoundary = true
				}
			}
		}
		if adapterBoundary {
			continue
		}
		willFuse[varID] = true
	}

	ready := make(map[string]bool, len(executeIDs))
	for changed := true; changed; {
		changed = false
		for id := range executeIDs {
			if ready[id] {
				continue
			}
			a := c.actions[id].(*workflow.ExecuteAction)
			blocked := false
			for _, in := range a.Inputs {
				if in.Variable == nil || in.Variable.HasLiteral() {
					continue
				}
				if _, ok := c.resolveValue(in.Variable.ID); ok {
					continue
				}
				producerID, hasProducer := producerOf[in.Variable.ID]
				if !hasProducer {
					continue // genuinely missing: let materialization fail it
				}
				if forEachProduced[in.Variable.ID] || !ready[producerID] || !willFuse[in.Variable.ID] {
					blocked = true
					break
				}
			}
			if !blocked {
				ready[id] = true
				changed = true
			}
		}
	}
	return ready
}

// planFusion computes, for each ready action, the single downstream action
// (if any) it fuses into, and the ordered list of chain-head action ids.
func (c *Compiler) planFusion(ready []*workflow.ExecuteAction) (map[string]string, []string, error) {
	byID := make(map[string]*workflow.ExecuteAction, len(ready))
	for _, a := range ready {
		byID[a.ID] = a
	}

	// producerOf[variableID] = action id among ready actions producing it.
	producerOf := make(map[string]string)
	for _, a := range ready {
		for _, out := range a.Outputs {
			if out.Variable != nil {
				producerOf[out.Variable.ID] = a.ID
			}
		}
	}

	// distinctProducers[actionID] = set of distinct producer action ids
	// feeding any of its inputs.
	distinctProducers := make(map[string]map[string]bool)
	for _, a := range ready {
		set := make(map[string]bool)
		for _, in := range a.Inputs {
			if in.Variable == nil {
				continue
			}
			if p, ok := producerOf[in.Variable.ID]; ok {
				set[p] = true
			}
		}
		distinctProducers[a.ID] = set
	}

	edge := make(map[string]string) // producer id -> consumer id (fused)
	for _, a := range ready {
		svc, ok := c.serviceByID[a.ServiceID]
		if !ok {
			return nil, nil, wferrors.New(wferrors.KindUnknownService, fmt.Sprintf("service %q not found for action %q", a.ServiceID, a.ID))
		}

		consumers := make(map[string]bool)
		adapterBoundary := false
		for _, out := range a.Outputs {
			if out.Variable == nil {
				continue
			}
			if sp := findServiceParam(svc, out.ID); sp != nil && c.oracle.HasAdapterFor(sp.DataType) {
				adapterBoundary = true
			}
			for _, b := range ready {
				if b.ID == a.ID {
					continue
				}
				for _, in := range b.Inputs {
					if in.Variable != nil && in.Variable.ID == out.Variable.ID {
						consumers[b.ID] = true
					}
				}
			}
		}
		if adapterBoundary || len(consumers) != 1 {
			continue
		}
		var nextID string
		for id := range consumers {
			nextID = id
		}
		if len(distinctProducers[nextID]) != 1 {
			continue // fan-in at the consumer: it starts its own chain
		}
		edge[a.ID] = nextID
	}

	isTarget := make(map[string]bool, len(edge))
	for _, next := range edge {
		isTarget[next] = true
	}
	var heads []string
	for _, a := range ready {
		if !isTarget[a.ID] {
			heads = append(heads, a.ID)
		}
	}
	return edge, heads, nil
}

func findServiceParam(svc workflow.ServiceMetadata, id string) *workflow.ServiceParameter {
	for i := range svc.Parameters {
		if svc.Parameters[i].ID == id {
			return &svc.Parameters[i]
		}
	}
	return nil
}

// materializeChain walks a fused run of actions starting at headID,
// materializing each Executable's arguments in turn. Outputs produced by an
// earlier Executable in the same chain are available to a later one's
// inputs even though they haven't executed yet, via a chain-local buffer.
func (c *Compiler) materializeChain(headID string, edge map[string]string, byID map[string]*workflow.ExecuteAction) (workflow.ProcessChain, error) {
	local := make(map[string]any)
	capSet := make(map[string]bool)
	var caps []string
	var executables []workflow.Executable

	id := headID
	for {
		a := byID[id]
		svc, ok := c.serviceByID[a.ServiceID]
		if !ok {
			return workflow.ProcessChain{}, wferrors.New(wferrors.KindUnknownService, fmt.Sprintf("service %q not found for action %q", a.ServiceID, a.ID))
		}

		ex, err := c.materializeExecutable(a, svc, local)
		if err != nil {
			return workflow.ProcessChain{}, err
		}
		executables = append(executables, ex)
		for _, rc := range svc.RequiredCapabilities {
			if !capSet[rc] {
				capSet[rc] = true
				caps = append(caps, rc)
			}
		}

		next, hasNext := edge[id]
		if !hasNext {
			break
		}
		id = next
	}

	return workflow.ProcessChain{
		ID:                   c.idGen.NextID(),
		Executables:          executables,
		RequiredCapabilities: caps,
	}, nil
}

func (c *Compiler) materializeExecutable(a *workflow.ExecuteAction, svc workflow.ServiceMetadata, local map[string]any) (workflow.Executable, error) {
	var args []workflow.Argument

	for _, sp := range svc.Parameters {
		if sp.Type != workflow.DirectionInput {
			continue
		}
		values, variableIDs := c.collectInputValues(a, sp, local)
		if len(values) == 0 && sp.Default != nil {
			values = []string{*sp.Default}
			variableIDs = []string{""}
		}
		if len(values) == 0 && sp.Cardinality.Min > 0 {
			return workflow.Executable{}, wferrors.New(wferrors.KindMissingInput,
				fmt.Sprintf("parameter %q of service %q has no resolvable value and no default", sp.ID, svc.ID))
		}
		if !sp.Cardinality.Contains(len(values)) {
			return workflow.Executable{}, wferrors.New(wferrors.KindCardinality,
				fmt.Sprintf("parameter %q of service %q: got %d argument(s), want [%d,%d]", sp.ID, svc.ID, len(values), sp.Cardinality.Min, sp.Cardinality.Max))
		}
		for i, v := range values {
			args = append(args, workflow.Argument{
				ParameterID: sp.ID,
				Label:       sp.Label,
				VariableID:  variableIDs[i],
				Value:       v,
				Direction:   workflow.DirectionInput,
				DataType:    sp.DataType,
			})
		}
	}

	for _, out := range a.Outputs {
		sp := findServiceParam(svc, out.ID)
		if sp == nil {
			continue
		}
		outPath := makeOutputPath(*sp, out, c.idGen, c.tmpPath, c.outPath)
		if out.Variable != nil {
			local[out.Variable.ID] = outPath
		}
		args = append(args, workflow.Argument{
			ParameterID: sp.ID,
			Label:       sp.Label,
			VariableID:  variableIDOf(out.Variable),
			Value:       outPath,
			Direction:   workflow.DirectionOutput,
			DataType:    sp.DataType,
		})
	}

	return workflow.Executable{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Path:        svc.Path,
		Runtime:     svc.Runtime,
		Arguments:   args,
	}, nil
}

func variableIDOf(v *workflow.Variable) string {
	if v == nil {
		return ""
	}
	return v.ID
}

// collectInputValues gathers and flattens every value bound to one
// ServiceParameter across the action's matching input Parameter entries,
// in materialization-order precedence: literal value, mergeToDir, a value
// already materialized earlier in this chain, then (by the caller) the
// parameter's own default.
func (c *Compiler) collectInputValues(a *workflow.ExecuteAction, sp workflow.ServiceParameter, local map[string]any) ([]string, []string) {
	var values []string
	var variableIDs []string
	for _, p := range a.Inputs {
		if p.ID != sp.ID {
			continue
		}
		v, ok := c.paramValue(p, sp, local)
		if !ok {
			continue
		}
		if p.FieldPath != "" {
			narrowed, err := workflow.ExtractField(v, p.FieldPath)
			if err != nil || narrowed == nil {
				continue
			}
			v = narrowed
		}
		for _, s := range workflow.Flatten(v) {
			values = append(values, s)
			variableIDs = append(variableIDs, variableIDOf(p.Variable))
		}
	}
	return values, variableIDs
}

func (c *Compiler) paramValue(p workflow.Parameter, sp workflow.ServiceParameter, local map[string]any) (any, bool) {
	if p.Variable == nil {
		return nil, false
	}
	if p.Variable.HasLiteral() {
		return p.Variable.Value, true
	}
	if lit, ok := c.vars[p.Variable.ID]; ok && lit.HasLiteral() {
		return lit.Value, true
	}
	if v, ok := c.variableValues[p.Variable.ID]; ok {
		if merged, ok2 := workflow.MergeToDir(v, sp.DataType); ok2 {
			return merged, true
		}
		return v, true
	}
	if v, ok := local[p.Variable.ID]; ok {
		return v, true
	}
	return nil, false
}

// makeOutputPath derives the on-disk path for one output argument: rooted
// at outPath when the output is marked to be stored, tmpPath otherwise,
// named from the next generator id plus the parameter's file suffix, with
// the parameter's prefix (if any) prepended to the filename and separators
// normalized to "/".
func makeOutputPath(sp workflow.ServiceParameter, op workflow.Parameter, idGen IDGenerator, tmpPath, outPath string) string {
	base := tmpPath
	if op.Store {
		base = outPath
	}
	filename := idGen.NextID() + sp.FileSuffix
	if op.Prefix != "" {
		filename = op.Prefix + filename
	}
	full := path.Join(base, filename)
	return strings.ReplaceAll(full, "\\", "/")
}
