package controller

import (
	"encoding/json"
	"fmt"
)

// checkpoint is what the controller actually writes through
// SubmissionRegistry.SetExecutionState. It wraps the compiler's own opaque
// state blob (produced by Compiler.SaveState, left untouched here) together
// with the id set of the most recently dispatched, not-yet-fully-consumed
// process chain batch, so a crash mid-round can be resumed without
// re-running Generate for chains that already exist.
type checkpoint struct {
	CompilerState   []byte   `json:"compilerState"`
	PendingChainIDs []string `json:"pendingChainIds"`
}

func encodeCheckpoint(compilerState []byte, pendingChainIDs []string) ([]byte, error) {
	blob, err := json.Marshal(checkpoint{CompilerState: compilerState, PendingChainIDs: pendingChainIDs})
	if err != nil {
		return nil, fmt.Errorf("encode controller checkpoint: %w", err)
	}
	return blob, nil
}

func decodeCheckpoint(blob []byte) (*checkpoint, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var cp checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, fmt.Errorf("decode controller checkpoint: %w", err)
	}
	return &cp, nil
}
