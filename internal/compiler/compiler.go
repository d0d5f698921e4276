// Package compiler lowers a declarative workflow into ordered batches of
// process chains, one Generate round at a time, recovering cleanly from a
// serialized checkpoint via SaveState/LoadState. The Compiler performs no
// I/O: every external effect (persistence, dispatch, polling) is the
// controller's responsibility.
package compiler

import (
	"github.com/lyzr/wfcompiler/internal/registry"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithOutputAdapterOracle injects the plugin-registry presence check used
// during process-chain fusion to decide where an output-adapter boundary
// forces a chain split. The oracle is a component the compiler consults but
// has no slot in the literal New(...) signature alongside
// workflow/tmpPath/outPath/services/idGenerator; wiring it through a
// trailing option (the same pattern used for bootstrap.Option) keeps the
// five named parameters intact while still making the oracle injectable
// and defaultable.
func WithOutputAdapterOracle(oracle registry.OutputAdapterOracle) Option {
	return func(c *Compiler) { c.oracle = oracle }
}

// noAdapterOracle is the default oracle used when none is injected: no data
// type is considered adapter-backed, so fusion never splits on that basis.
type noAdapterOracle struct{}

func (noAdapterOracle) HasAdapterFor(string) bool { return false }

// Compiler holds one workflow's pending compilation state. Not safe for
// concurrent use: the owning submission loop must serialize every call.
type Compiler struct {
	workflow    *workflow.Workflow
	tmpPath     string
	outPath     string
	services    []workflow.ServiceMetadata
	serviceByID map[string]workflow.ServiceMetadata
	idGen       IDGenerator
	oracle      registry.OutputAdapterOracle

	vars     map[string]*workflow.Variable
	varOrder []string

	actions     map[string]workflow.Action
	actionOrder []string

	variableValues map[string]any

	forEachOutputsToBeCollected map[string][]string

	iterations map[string]int
}

// New constructs a Compiler for one workflow. tmpPath and outPath are the
// staging and durable output roots makeOutputPath draws from; services is
// the service-metadata catalogue available to every ExecuteAction;
// idGenerator mints process-chain and output-path ids.
func New(wf *workflow.Workflow, tmpPath, outPath string, services []workflow.ServiceMetadata, idGenerator IDGenerator, opts ...Option) *Compiler {
	c := &Compiler{
		workflow:                    wf,
		tmpPath:                     tmpPath,
		outPath:                     outPath,
		services:                    services,
		serviceByID:                 make(map[string]workflow.ServiceMetadata, len(services)),
		idGen:                       idGenerator,
		oracle:                      noAdapterOracle{},
		vars:                        make(map[string]*workflow.Variable),
		actions:                     make(map[string]workflow.Action),
		variableValues:              make(map[string]any),
		forEachOutputsToBeCollected: make(map[string][]string),
		iterations:                  make(map[string]int),
	}
	for _, s := range services {
		c.serviceByID[s.ID] = s
	}
	for i := range wf.Vars {
		v := wf.Vars[i]
		c.vars[v.ID] = &v
		c.varOrder = append(c.varOrder, v.ID)
	}
	for _, a := range wf.Actions {
		c.addAction(a)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsFinished reports whether every action has been retired.
func (c *Compiler) IsFinished() bool {
	return len(c.actions) == 0
}

// Generate runs one round of the compile pipeline: ingest the previous
// round's results, fixpoint-collect completed for-each outputs, unroll any
// now-resolvable for-each actions, fuse the resulting ExecuteActions into
// process chains, and retire whichever actions were consumed.
func (c *Compiler) Generate(results map[string][]any) ([]workflow.ProcessChain, error) {
	c.ingestResults(results)
	c.collectForEachOutputsFixpoint()
	if err := c.unrollForEach(); err != nil {
		return nil, err
	}
	chains, used, err := c.buildProcessChains()
	if err != nil {
		return nil, err
	}
	for id := range used {
		c.removeAction(id)
	}
	return chains, nil
}

func (c *Compiler) addAction(a workflow.Action) {
	id := a.ActionID()
	if _, exists := c.actions[id]; !exists {
		c.actionOrder = append(c.actionOrder, id)
	}
	c.actions[id] = a
}

func (c *Compiler) removeAction(id string) {
	if _, ok := c.actions[id]; !ok {
		return
	}
	delete(c.actions, id)
	for i, aid := range c.actionOrder {
		if aid == id {
			c.actionOrder = append(c.actionOrder[:i], c.actionOrder[i+1:]...)
			break
		}
	}
}

// resolveValue looks up a variable's current value: a prior round's
// materialized result takes precedence over the workflow's own literal.
func (c *Compiler) resolveValue(id string) (any, bool) {
	if v, ok := c.variableValues[id]; ok {
		return v, true
	}
	if lit, ok := c.vars[id]; ok && lit.HasLiteral() {
		return lit.Value, true
	}
	return nil, false
}

// nextIteration returns the next (zero-based) iteration index for an
// enumerator and advances its counter.
func (c *Compiler) nextIteration(enumID string) int {
	idx := c.iterations[enumID]
	c.iterations[enumID] = idx + 1
	return idx
}

// ingestResults folds a round's dispatch results into variableValues: a
// single value collapses to a scalar, multiple values stay a sequence, and
// an empty result set becomes an explicit empty sequence.
func (c *Compiler) ingestResults(results map[string][]any) {
	for id, vs := range results {
		switch len(vs) {
		case 0:
			c.variableValues[id] = []any{}
		case 1:
			c.variableValues[id] = vs[0]
		default:
			c.variableValues[id] = append([]any{}, vs...)
		}
	}
}

// collectForEachOutputsFixpoint repeatedly folds any pending for-each
// output entry whose member variables have all become resolvable into
// variableValues, via the yieldTo operator, until no further progress is
// made in a pass.
func (c *Compiler) collectForEachOutputsFixpoint() {
	for {
		progress := false
		for outputID, pending := range c.forEachOutputsToBeCollected {
			allResolved := true
			for _, vid := range pending {
				if _, ok := c.resolveValue(vid); !ok {
					allResolved = false
					break
				}
			}
			if !allResolved {
				continue
			}

			var dest any
			if existing, ok := c.variableValues[outputID]; ok {
				dest = existing
			}
			outputs := make([]any, 0, len(pending))
			for _, vid := range pending {
				val, _ := c.resolveValue(vid)
				outputs = append(outputs, val)
			}
			c.variableValues[outputID] = workflow.YieldTo(dest, outputs)
			delete(c.forEachOutputsToBeCollected, outputID)
			progress = true
		}
		if !progress {
			return
		}
	}
}
