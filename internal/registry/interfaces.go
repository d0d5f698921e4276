// Package registry declares the external-collaborator contracts the
// compiler and controller core depend on (submissions, process chains,
// service metadata, output adapters, leases, the signal bus) plus concrete
// implementations of each: Postgres-backed submissions and process chains,
// Redis-backed leases and signal bus, and static, config-loaded service
// metadata and output-adapter oracle.
package registry

import (
	"context"
	"time"

	"github.com/lyzr/wfcompiler/internal/workflow"
)

// SubmissionStatus is the lifecycle state of one workflow submission.
type SubmissionStatus string

const (
	StatusAccepted       SubmissionStatus = "ACCEPTED"
	StatusRunning        SubmissionStatus = "RUNNING"
	StatusSuccess        SubmissionStatus = "SUCCESS"
	StatusPartialSuccess SubmissionStatus = "PARTIAL_SUCCESS"
	StatusError          SubmissionStatus = "ERROR"
)

// ProcessChainStatus is the lifecycle state of one dispatched process chain.
type ProcessChainStatus string

const (
	PCStatusRegistered ProcessChainStatus = "REGISTERED"
	PCStatusRunning    ProcessChainStatus = "RUNNING"
	PCStatusSuccess    ProcessChainStatus = "SUCCESS"
	PCStatusError      ProcessChainStatus = "ERROR"
)

// Submission is one accepted workflow run.
type Submission struct {
	ID        string
	Workflow  *workflow.Workflow
	Status    SubmissionStatus
	StartTime *time.Time
	EndTime   *time.Time
}

// SubmissionRegistry is the persistent store of submissions and their
// checkpointed compiler execution state.
type SubmissionRegistry interface {
	FetchNext(ctx context.Context, fromStatus, toStatus SubmissionStatus) (*Submission, error)
	FindByID(ctx context.Context, id string) (*Submission, error)
	FindIDsByStatus(ctx context.Context, status SubmissionStatus) ([]string, error)
	GetStatus(ctx context.Context, id string) (SubmissionStatus, error)
	SetStatus(ctx context.Context, id string, status SubmissionStatus) error
	SetStartTime(ctx context.Context, id string, t time.Time) error
	SetEndTime(ctx context.Context, id string, t time.Time) error
	GetExecutionState(ctx context.Context, id string) ([]byte, error)
	SetExecutionState(ctx context.Context, id string, blob []byte) error
	SetResults(ctx context.Context, id string, results map[string][]any) error
}

// ProcessChainRegistry is the persistent store of emitted process chains
// and their terminal status/results.
type ProcessChainRegistry interface {
	AddProcessChains(ctx context.Context, submissionID string, chains []workflow.ProcessChain) error
	FindBySubmissionID(ctx context.Context, submissionID string) ([]workflow.ProcessChain, error)
	CountByStatus(ctx context.Context, submissionID string, status ProcessChainStatus) (int, error)
	FindStatusesBySubmissionID(ctx context.Context, submissionID string) (map[string]ProcessChainStatus, error)
	GetResults(ctx context.Context, pcID string) (map[string][]any, error)
	GetStatus(ctx context.Context, pcID string) (ProcessChainStatus, error)
	GetErrorMessage(ctx context.Context, pcID string) (string, error)
	SetStatus(ctx context.Context, pcID string, status ProcessChainStatus) error
	SetErrorMessage(ctx context.Context, pcID string, msg string) error
}

// ServiceMetadataRegistry is the external catalogue of callable services.
type ServiceMetadataRegistry interface {
	FindServices(ctx context.Context) ([]workflow.ServiceMetadata, error)
}

// OutputAdapterOracle answers "is there a plugin that post-processes
// outputs of data type D?" — the only fact the compiler needs from the
// plugin registry.
type OutputAdapterOracle interface {
	HasAdapterFor(dataType string) bool
}

// Lease is a held, named, time-bounded exclusive token.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseManager grants per-submission exclusive leases.
type LeaseManager interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// SignalBus fire-and-forgets a wakeup to the external scheduler.
type SignalBus interface {
	Publish(ctx context.Context, topic string) error
}
