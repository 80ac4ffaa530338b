package state

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-dev/devc/internal/registry"
)

// StateManager determines devcontainer lifecycle state by combining the
// persisted registry record for a workspace with a live check against the
// container runtime. The registry is the system of record for identity,
// provider, and lifecycle status; the runtime check only detects drift - a
// container removed out from under devc, or a config edited since the last
// build - that the registry alone cannot know about.
type StateManager struct {
	client   ContainerClient
	Registry *registry.Store
}

// NewStateManager creates a StateManager backed by the given container
// client and persisted registry.
func NewStateManager(client ContainerClient, reg *registry.Store) *StateManager {
	return &StateManager{client: client, Registry: reg}
}

func containerInfoFromSummary(c *ContainerSummary) *ContainerInfo {
	return &ContainerInfo{
		ID:             c.ID,
		Name:           c.Name,
		Status:         c.State,
		Running:        c.Running,
		ConfigHash:     c.Labels[LabelHashConfig],
		WorkspaceID:    GetWorkspaceID(c.Labels),
		ComposeProject: c.Labels[LabelComposeProject],
		PrimaryService: c.Labels[LabelComposeService],
		Labels:         ContainerLabelsFromMap(c.Labels),
	}
}

// GetState resolves a workspace's state purely from live containers carrying
// its workspace-id label, ignoring the registry. Used where no persisted
// record is available (or desired) - tests, and the legacy single-container
// CLI path.
func (m *StateManager) GetState(ctx context.Context, workspaceID string) (ContainerState, *ContainerInfo, error) {
	containers, err := m.client.ListContainersWithLabels(ctx, map[string]string{
		LabelWorkspaceID: workspaceID,
	})
	if err != nil {
		return StateAbsent, nil, err
	}
	if len(containers) == 0 {
		return StateAbsent, nil, nil
	}

	var primary *ContainerSummary
	for i := range containers {
		if containers[i].Labels[LabelIsPrimary] == "true" {
			primary = &containers[i]
			break
		}
	}
	if primary == nil {
		// Containers exist for this workspace but none is marked primary -
		// a partially-created or corrupted environment.
		return StateBroken, containerInfoFromSummary(&containers[0]), nil
	}

	info := containerInfoFromSummary(primary)
	if primary.Running {
		return StateRunning, info, nil
	}
	return StateCreated, info, nil
}

// GetStateWithHashCheck is GetState plus staleness detection against the
// config hash baked into the container's labels at create time.
func (m *StateManager) GetStateWithHashCheck(ctx context.Context, workspaceID, currentConfigHash string) (ContainerState, *ContainerInfo, error) {
	st, info, err := m.GetState(ctx, workspaceID)
	if err != nil || info == nil {
		return st, info, err
	}
	if info.ConfigHash != "" && currentConfigHash != "" && info.ConfigHash != currentConfigHash {
		return StateStale, info, nil
	}
	return st, info, nil
}

// Cleanup stops and removes every live container carrying workspaceID's
// label, regardless of what the registry thinks - used to recover from a
// StateBroken environment.
func (m *StateManager) Cleanup(ctx context.Context, workspaceID string, removeVolumes bool) error {
	containers, err := m.client.ListContainersWithLabels(ctx, map[string]string{
		LabelWorkspaceID: workspaceID,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for _, c := range containers {
		if c.Running {
			if err := m.client.StopContainer(ctx, c.ID, nil); err != nil {
				lastErr = err
				continue
			}
		}
		if err := m.client.RemoveContainer(ctx, c.ID, true, removeVolumes); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ValidateState checks whether operation is legal given workspaceID's
// current live state, independent of the registry.
func (m *StateManager) ValidateState(ctx context.Context, workspaceID string, operation Operation) error {
	st, _, err := m.GetState(ctx, workspaceID)
	if err != nil {
		return err
	}

	switch operation {
	case OpStart:
		switch st {
		case StateRunning:
			return ErrAlreadyRunning
		case StateAbsent:
			return ErrNoContainer
		case StateStale:
			return ErrStaleConfig
		case StateBroken:
			return ErrBrokenState
		}
	case OpStop, OpExec:
		if st != StateRunning {
			return ErrNotRunning
		}
	case OpDown:
		if st == StateAbsent {
			return ErrNoContainer
		}
	case OpUp:
		// Up is legal from any state.
	}
	return nil
}

func containerInfoFromRecord(rec *registry.ContainerState) *ContainerInfo {
	return &ContainerInfo{
		ID:             rec.ContainerID,
		Name:           rec.Name,
		WorkspaceID:    rec.WorkspaceID,
		ConfigHash:     rec.Metadata["config_hash"],
		Plan:           rec.Metadata["plan"],
		ComposeProject: rec.ComposeProject,
		PrimaryService: rec.ComposeService,
	}
}

// GetStateWithProjectAndHash resolves the current ContainerState for a
// workspace, flagging StateStale when the resolved config hash no longer
// matches what the registry recorded at last create/build.
func (m *StateManager) GetStateWithProjectAndHash(ctx context.Context, projectName, workspaceID, configHash string) (ContainerState, *ContainerInfo, error) {
	if m.Registry == nil {
		return StateAbsent, nil, nil
	}

	rec := m.Registry.FindByWorkspaceID(workspaceID)
	if rec == nil {
		return StateAbsent, nil, nil
	}
	info := containerInfoFromRecord(rec)

	if rec.ContainerID != "" && m.client != nil {
		details, err := m.client.InspectContainer(ctx, rec.ContainerID)
		if err != nil {
			// The registry thinks a container exists but the runtime
			// disagrees - something removed it outside of devc.
			return StateBroken, info, nil
		}
		info.Running = details.Running
		info.Status = details.State
	}

	if configHash != "" && info.ConfigHash != "" && info.ConfigHash != configHash {
		return StateStale, info, nil
	}

	switch rec.Status {
	case registry.StatusRunning:
		if info.Running {
			return StateRunning, info, nil
		}
		return StateStopped, info, nil
	case registry.StatusStopped:
		return StateStopped, info, nil
	case registry.StatusCreated:
		return StateCreated, info, nil
	case registry.StatusFailed:
		return StateFailed, info, nil
	case registry.StatusBuilding:
		return StateBuilding, info, nil
	case registry.StatusBuilt:
		return StateBuilt, info, nil
	case registry.StatusConfigured:
		return StateConfigured, info, nil
	default:
		return StateAbsent, nil, nil
	}
}

// GetStateWithProject is GetStateWithProjectAndHash without staleness
// detection, for callers that only need to know whether a container is
// usable right now.
func (m *StateManager) GetStateWithProject(ctx context.Context, projectName, workspaceID string) (ContainerState, *ContainerInfo, error) {
	return m.GetStateWithProjectAndHash(ctx, projectName, workspaceID, "")
}

// EnsureRecord returns the registry record for workspaceID, creating one in
// StatusConfigured if this is the first time devc has seen this workspace.
func (m *StateManager) EnsureRecord(workspaceID, name, configPath, workspacePath string, provider registry.Provider) (*registry.ContainerState, error) {
	if rec := m.Registry.FindByWorkspaceID(workspaceID); rec != nil {
		return rec, nil
	}

	now := time.Now().UTC()
	rec := &registry.ContainerState{
		Name:          name,
		Provider:      provider,
		ConfigPath:    configPath,
		WorkspacePath: workspacePath,
		WorkspaceID:   workspaceID,
		Status:        registry.StatusConfigured,
		Source:        registry.SourceDevc,
		CreatedAt:     now,
		LastUsed:      now,
		Metadata:      map[string]string{},
	}
	if err := m.Registry.Add(rec); err != nil {
		return nil, err
	}
	return rec, m.Registry.Save()
}

// SetStatus transitions the registry record for workspaceID to status and
// persists the change.
func (m *StateManager) SetStatus(workspaceID string, status registry.Status) error {
	rec := m.Registry.FindByWorkspaceID(workspaceID)
	if rec == nil {
		return fmt.Errorf("state: no registry record for workspace %s", workspaceID)
	}
	rec.Status = status
	rec.LastUsed = time.Now().UTC()
	return m.Registry.Save()
}

// SetContainerAndHash records the runtime container id and the config hash
// it was created from, moving the record to StatusCreated.
func (m *StateManager) SetContainerAndHash(workspaceID, containerID, configHash string) error {
	rec := m.Registry.FindByWorkspaceID(workspaceID)
	if rec == nil {
		return fmt.Errorf("state: no registry record for workspace %s", workspaceID)
	}
	rec.ContainerID = containerID
	rec.Status = registry.StatusCreated
	rec.LastUsed = time.Now().UTC()
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	rec.Metadata["config_hash"] = configHash
	return m.Registry.Save()
}

// Forget drops the registry record for workspaceID without touching the
// runtime container (the "forget" operation of S-series delete safety).
func (m *StateManager) Forget(workspaceID string) error {
	rec := m.Registry.FindByWorkspaceID(workspaceID)
	if rec == nil {
		return nil
	}
	m.Registry.Remove(rec.ID)
	return m.Registry.Save()
}

// Adopt registers a container that devc did not create - found running
// under a third party's labels, or reattached to a config whose registry
// record was lost. Adopted records are never eligible for destruction by
// remove/down (see registry.ContainerState.CanDestroy); only up's own
// create path can set Source to SourceDevc.
func (m *StateManager) Adopt(workspaceID, name, configPath, workspacePath, containerID string, provider registry.Provider, source registry.Source) (*registry.ContainerState, error) {
	if rec := m.Registry.FindByWorkspaceID(workspaceID); rec != nil {
		rec.ContainerID = containerID
		rec.LastUsed = time.Now().UTC()
		if err := m.Registry.Save(); err != nil {
			return nil, err
		}
		return rec, nil
	}

	id := ""
	if registry.ValidFormat(containerID) {
		// Adopted containers sometimes carry a label recording the id a
		// previous tool already assigned; keep it instead of minting a
		// new identity for the same container.
		id = containerID
	}

	now := time.Now().UTC()
	rec := &registry.ContainerState{
		ID:            id,
		Name:          name,
		Provider:      provider,
		ConfigPath:    configPath,
		WorkspacePath: workspacePath,
		WorkspaceID:   workspaceID,
		ContainerID:   containerID,
		Status:        registry.StatusCreated,
		Source:        source,
		CreatedAt:     now,
		LastUsed:      now,
		Metadata:      map[string]string{},
	}
	if err := m.Registry.Add(rec); err != nil {
		return nil, err
	}
	return rec, m.Registry.Save()
}
