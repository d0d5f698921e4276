package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/wfcompiler/internal/registry"
)

func TestClassifyTerminal(t *testing.T) {
	cases := []struct {
		name       string
		isFinished bool
		errs       int
		total      int
		want       registry.SubmissionStatus
	}{
		{"not finished is always an error", false, 0, 5, registry.StatusError},
		{"finished with no chains at all", true, 0, 0, registry.StatusSuccess},
		{"finished with zero errors", true, 0, 4, registry.StatusSuccess},
		{"finished with every chain erroring", true, 3, 3, registry.StatusError},
		{"finished with some errors", true, 1, 3, registry.StatusPartialSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyTerminal(tc.isFinished, tc.errs, tc.total)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckpointEncodeDecodeRoundTrip(t *testing.T) {
	blob, err := encodeCheckpoint([]byte(`{"vars":[]}`), []string{"pc-1", "pc-2"})
	require.NoError(t, err)

	cp, err := decodeCheckpoint(blob)
	require.NoError(t, err)
	require.NotNil(t, cp)

	assert.Equal(t, `{"vars":[]}`, string(cp.CompilerState))
	require.Len(t, cp.PendingChainIDs, 2)
	assert.Equal(t, "pc-1", cp.PendingChainIDs[0])
	assert.Equal(t, "pc-2", cp.PendingChainIDs[1])
}

func TestDecodeCheckpointEmptyBlobMeansNoCheckpoint(t *testing.T) {
	cp, err := decodeCheckpoint(nil)
	require.NoError(t, err)
	assert.Nil(t, cp, "decodeCheckpoint(nil) should be nil: fresh run, no checkpoint yet")
}
