package registry

import (
	"context"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

// StaticServiceMetadataRegistry serves a fixed, config-loaded service
// catalogue. A real deployment may later swap this for one backed by a
// service-discovery mechanism; nothing in the compiler depends on the
// concrete type, only on ServiceMetadataRegistry.
type StaticServiceMetadataRegistry struct {
	services []workflow.ServiceMetadata
}

// NewStaticServiceMetadataRegistry wraps a fixed slice as a
// ServiceMetadataRegistry.
func NewStaticServiceMetadataRegistry(services []workflow.ServiceMetadata) *StaticServiceMetadataRegistry {
	return &StaticServiceMetadataRegistry{services: services}
}

func (r *StaticServiceMetadataRegistry) FindServices(ctx context.Context) ([]workflow.ServiceMetadata, error) {
	return r.services, nil
}

// StaticOutputAdapterOracle answers HasAdapterFor from a fixed, config-
// loaded set of data types known to have a registered output adapter.
type StaticOutputAdapterOracle struct {
	dataTypes map[string]bool
}

// NewStaticOutputAdapterOracle builds an oracle from the given data types.
func NewStaticOutputAdapterOracle(dataTypes []string) *StaticOutputAdapterOracle {
	m := make(map[string]bool, len(dataTypes))
	for _, dt := range dataTypes {
		m[dt] = true
	}
	return &StaticOutputAdapterOracle{dataTypes: m}
}

func (o *StaticOutputAdapterOracle) HasAdapterFor(dataType string) bool {
	return o.dataTypes[dataType]
}
