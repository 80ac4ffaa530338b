package container

import (
	"fmt"

	"github.com/kestrel-dev/devc/internal/registry"
	"github.com/kestrel-dev/devc/internal/state"
)

// EngineFor returns the state.ContainerClient adapter for the given
// provider, connecting to that engine on first use. A registry record's
// Provider field decides which engine devc talks to for that workspace,
// so two records - one Docker, one adopted from a podman-managed
// container - coexist in the same registry without devc ever mixing up
// which daemon owns which container.
func EngineFor(provider registry.Provider) (state.ContainerClient, error) {
	switch provider {
	case registry.ProviderPodman:
		return PodmanClient()
	case registry.ProviderDocker, "":
		return DockerClient()
	default:
		return nil, fmt.Errorf("unknown container provider %q", provider)
	}
}

// DetectProvider probes for a usable container engine, preferring Docker
// (devc's default target) and falling back to Podman. Used when adopting a
// container without already knowing which engine created it.
func DetectProvider() registry.Provider {
	if _, err := DockerClient(); err == nil {
		return registry.ProviderDocker
	}
	if _, err := PodmanClient(); err == nil {
		return registry.ProviderPodman
	}
	return registry.ProviderDocker
}
