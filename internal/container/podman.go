package container

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/containers/podman/v5/pkg/bindings"
	"github.com/containers/podman/v5/pkg/bindings/containers"
	"github.com/containers/podman/v5/pkg/specgen"

	"github.com/kestrel-dev/devc/internal/devcontainer"
	"github.com/kestrel-dev/devc/internal/state"
)

// Podman wraps the podman/v5 REST bindings with devc-specific functionality.
// Unlike Docker, which shells out to the docker CLI, Podman talks to the
// podman API socket directly - podman's own CLI wraps the same bindings, so
// this is the native way to drive it rather than a second CLI shim.
type Podman struct {
	ctx context.Context // carries the bindings connection, per pkg/bindings convention
}

var (
	podmanClient   *Podman
	podmanOnce     sync.Once
	podmanErr      error
	podmanSockURIs = []string{
		"unix:///run/podman/podman.sock",
		"unix:///run/user/%d/podman/podman.sock",
	}
)

// NewPodman connects to the local podman API socket, trying the system
// socket before the rootless per-user socket.
func NewPodman() (*Podman, error) {
	var lastErr error
	for _, uri := range candidatePodmanSockets() {
		ctx, err := bindings.NewConnection(context.Background(), uri)
		if err != nil {
			lastErr = err
			continue
		}
		return &Podman{ctx: ctx}, nil
	}
	return nil, fmt.Errorf("podman not accessible: %w", lastErr)
}

// PodmanClient returns the singleton Podman instance, connecting on first use.
func PodmanClient() (*Podman, error) {
	podmanOnce.Do(func() {
		podmanClient, podmanErr = NewPodman()
	})
	return podmanClient, podmanErr
}

// MustPodman returns the singleton Podman instance, panicking if podman is
// not accessible. Mirrors MustDocker for callers that already know the
// target environment's provider is podman.
func MustPodman() *Podman {
	p, err := PodmanClient()
	if err != nil {
		panic(fmt.Sprintf("podman not accessible: %v", err))
	}
	return p
}

// ListContainersWithLabels returns containers matching label filters.
// Implements state.ContainerClient.
func (p *Podman) ListContainersWithLabels(ctx context.Context, labels map[string]string) ([]state.ContainerSummary, error) {
	filters := make(map[string][]string, len(labels))
	for k, v := range labels {
		filters["label"] = append(filters["label"], fmt.Sprintf("%s=%s", k, v))
	}
	opts := new(containers.ListOptions).WithAll(true).WithFilters(filters)
	list, err := containers.List(p.ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]state.ContainerSummary, 0, len(list))
	for _, c := range list {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		result = append(result, state.ContainerSummary{
			ID:      c.ID,
			Name:    name,
			State:   c.State,
			Running: c.State == "running",
			Labels:  c.Labels,
		})
	}
	return result, nil
}

// InspectContainer returns detailed information about a container.
// Implements state.ContainerClient.
func (p *Podman) InspectContainer(ctx context.Context, containerID string) (*state.ContainerDetails, error) {
	data, err := containers.Inspect(p.ctx, containerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	var mounts []string
	for _, m := range data.Mounts {
		mounts = append(mounts, fmt.Sprintf("%s:%s", m.Source, m.Destination))
	}

	var labels map[string]string
	var workingDir string
	if data.Config != nil {
		labels = data.Config.Labels
		workingDir = data.Config.WorkingDir
	}

	return &state.ContainerDetails{
		ID:         data.ID,
		Name:       strings.TrimPrefix(data.Name, "/"),
		State:      data.State.Status,
		Running:    data.State.Running,
		StartedAt:  data.State.StartedAt,
		Image:      data.Image,
		Labels:     labels,
		Mounts:     mounts,
		WorkingDir: workingDir,
	}, nil
}

// StartContainer starts a stopped container. Implements state.ContainerClient
// via the embedding used by ContainerRuntime callers.
func (p *Podman) StartContainer(ctx context.Context, containerID string) error {
	if err := containers.Start(p.ctx, containerID, nil); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// StopContainer stops a running container. Implements state.ContainerClient.
func (p *Podman) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	opts := new(containers.StopOptions)
	if timeout != nil {
		secs := uint(timeout.Seconds())
		opts = opts.WithTimeout(secs)
	}
	if err := containers.Stop(p.ctx, containerID, opts); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container. Implements state.ContainerClient.
func (p *Podman) RemoveContainer(ctx context.Context, containerID string, force, removeVolumes bool) error {
	opts := new(containers.RemoveOptions).WithForce(force).WithVolumes(removeVolumes)
	rpts, err := containers.Remove(p.ctx, containerID, opts)
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	for _, r := range rpts {
		if r.Err != nil {
			return fmt.Errorf("failed to remove container: %w", r.Err)
		}
	}
	return nil
}

// Ensure Podman implements state.ContainerClient.
var _ state.ContainerClient = (*Podman)(nil)

// CreateContainer creates a new container via specgen, the same options
// shape Docker's CreateContainer accepts so callers in this package don't
// need provider-specific branching beyond engine selection.
//
// Bind mounts get an SELinux relabel suffix (:Z for private, matching
// devc's one-container-per-mount model) on hosts where SELinux enforces
// mount labels - podman refuses container access to host bind mounts
// without it whenever the host runs SELinux in enforcing mode, unlike
// Docker, which predates SELinux label-aware mounts in its CLI.
func (p *Podman) CreateContainer(ctx context.Context, opts CreateContainerOptions) (string, error) {
	spec := specgen.NewSpecGenerator(opts.Image, false)
	spec.Name = opts.Name
	spec.User = opts.User
	spec.WorkDir = opts.WorkspaceFolder
	spec.Privileged = &opts.Privileged
	spec.Init = &opts.Init
	spec.Terminal = boolPtr(true)
	spec.CapAdd = opts.CapAdd
	spec.CapDrop = opts.CapDrop
	spec.Env = envSliceToMap(opts.Env)
	spec.Labels = opts.Labels
	spec.Entrypoint = opts.Entrypoint
	spec.Command = opts.Cmd

	if opts.WorkspaceMount != nil {
		spec.Mounts = append(spec.Mounts, podmanMountFromDevcontainer(opts.WorkspaceMount))
	} else if opts.WorkspacePath != "" && opts.WorkspaceFolder != "" {
		spec.Mounts = append(spec.Mounts, podmanMountFromDevcontainer(&devcontainer.Mount{
			Type:   "bind",
			Source: opts.WorkspacePath,
			Target: opts.WorkspaceFolder,
		}))
	}
	for _, m := range opts.Mounts {
		m := m
		spec.Mounts = append(spec.Mounts, podmanMountFromDevcontainer(&m))
	}

	resp, err := containers.CreateWithSpec(p.ctx, spec, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

func boolPtr(b bool) *bool { return &b }

func envSliceToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

// podmanMountFromDevcontainer converts a devcontainer mount spec into the
// OCI-runtime-spec mount shape podman's specgen expects, relabeling bind
// mounts for SELinux along the way.
func podmanMountFromDevcontainer(m *devcontainer.Mount) specgen.Mount {
	options := []string{}
	if m.ReadOnly {
		options = append(options, "ro")
	}
	mountType := m.Type
	if mountType == "" {
		mountType = "bind"
	}
	if mountType == "bind" {
		options = append(options, "Z")
	}
	return specgen.Mount{
		Type:        mountType,
		Source:      m.Source,
		Destination: m.Target,
		Options:     options,
	}
}

func candidatePodmanSockets() []string {
	uris := make([]string, 0, len(podmanSockURIs))
	for _, u := range podmanSockURIs {
		if strings.Contains(u, "%d") {
			uris = append(uris, fmt.Sprintf(u, os.Getuid()))
			continue
		}
		uris = append(uris, u)
	}
	return uris
}
