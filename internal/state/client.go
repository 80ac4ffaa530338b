package state

import (
	"context"
	"time"
)

// ContainerClient abstracts the subset of container-engine operations the
// state manager needs to reconcile a registry record against live runtime
// state. Both the Docker and Podman adapters in internal/container satisfy
// this, so StateManager works unmodified with whichever provider owns a
// given record.
type ContainerClient interface {
	ListContainersWithLabels(ctx context.Context, labels map[string]string) ([]ContainerSummary, error)
	InspectContainer(ctx context.Context, containerID string) (*ContainerDetails, error)
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, force, removeVolumes bool) error
}

// ContainerSummary is the lightweight per-container record returned by a
// label-filtered list.
type ContainerSummary struct {
	ID      string
	Name    string
	State   string
	Running bool
	Labels  map[string]string
}

// ContainerDetails is the full per-container record returned by inspect.
type ContainerDetails struct {
	ID         string
	Name       string
	State      string
	Running    bool
	StartedAt  string
	Image      string
	Labels     map[string]string
	Mounts     []string
	WorkingDir string
}
