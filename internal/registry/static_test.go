package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

func TestStaticServiceMetadataRegistryFindServices(t *testing.T) {
	services := []workflow.ServiceMetadata{{ID: "svc.a"}, {ID: "svc.b"}}
	r := NewStaticServiceMetadataRegistry(services)

	got, err := r.FindServices(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStaticOutputAdapterOracle(t *testing.T) {
	o := NewStaticOutputAdapterOracle([]string{"image", "directory"})

	assert.True(t, o.HasAdapterFor("image"))
	assert.False(t, o.HasAdapterFor("text"))
}

func TestStaticOutputAdapterOracleEmpty(t *testing.T) {
	o := NewStaticOutputAdapterOracle(nil)
	assert.False(t, o.HasAdapterFor("anything"), "HasAdapterFor() on an empty oracle should always be false")
}
