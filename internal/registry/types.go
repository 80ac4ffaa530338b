// Package registry implements the persistent, on-disk container registry.
//
// Unlike the live-status reconciliation in internal/state (which derives
// status from Docker labels on every call), this package is the durable
// record of every container devc has ever created or adopted: what config
// path it belongs to, which provider owns it, and what phase of its
// lifecycle it last reached. It survives process restarts and is shared
// safely across concurrent devc invocations via a sibling lock file.
package registry

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idAlphabet avoids visually ambiguous characters (0/O, 1/I/l) since
// registry IDs show up in terminal output and SSH host aliases.
const idAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// NewID generates a short, URL-safe, collision-resistant identifier for a
// new registry record.
func NewID() string {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		// gonanoid.Generate only fails on a bad alphabet/length, both fixed
		// above; a timestamp-based fallback keeps Add from ever panicking.
		return "fallback-" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return id
}

var nanoidShape = regexp.MustCompile("^[" + idAlphabet + "]{12}$")

// ValidFormat reports whether id is either a devc-issued short id or a
// standard UUID. Adoption encounters ids minted by other tools (the VS
// Code Dev Containers CLI, devpod) that use textbook UUIDv4 rather than
// devc's own alphabet; this lets Adopt keep such an id instead of
// discarding an identity another tool already persisted elsewhere.
func ValidFormat(id string) bool {
	if nanoidShape.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Status is the persisted lifecycle status of a tracked container.
//
// Available is intentionally NOT part of this enum: a config discovered on
// disk but never registered has no ContainerState at all, so there is
// nothing to persist for it. Callers represent "available" by the absence
// of a record, never by a Status value.
type Status string

const (
	StatusConfigured Status = "configured"
	StatusBuilding   Status = "building"
	StatusBuilt      Status = "built"
	StatusCreated    Status = "created"
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
)

// Source identifies who created the runtime container behind a state
// record. Only Devc-sourced containers may be destroyed by remove/down;
// everything else is adopted tracking only (see CanDestroy).
type Source string

const (
	SourceDevc   Source = "devc"
	SourceVSCode Source = "vscode"
	SourceDevPod Source = "devpod"
	SourceOther  Source = "other"
)

// Provider identifies which runtime engine a container belongs to.
type Provider string

const (
	ProviderDocker Provider = "docker"
	ProviderPodman Provider = "podman"
)

// ContainerState is one persisted record in the registry. ConfigPath is the
// identity key: the store enforces at most one record per config path.
type ContainerState struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Provider       Provider          `json:"provider"`
	ConfigPath     string            `json:"config_path"`
	WorkspacePath  string            `json:"workspace_path"`
	WorkspaceID    string            `json:"workspace_id,omitempty"`
	ImageID        string            `json:"image_id,omitempty"`
	ContainerID    string            `json:"container_id,omitempty"`
	Status         Status            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUsed       time.Time         `json:"last_used"`
	ComposeProject string            `json:"compose_project,omitempty"`
	ComposeService string            `json:"compose_service,omitempty"`
	Source         Source            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CanDestroy reports whether remove/down is allowed to destroy the runtime
// container this record tracks. Only containers devc itself created may be
// torn down; adopted containers are tracking-only.
func (c *ContainerState) CanDestroy() bool {
	return c.Source == SourceDevc
}

// CanStart reports whether Start is a legal transition from the current
// status.
func (c *ContainerState) CanStart() bool {
	return c.Status == StatusCreated || c.Status == StatusStopped
}

// CanStop reports whether Stop is a legal transition from the current
// status.
func (c *ContainerState) CanStop() bool {
	return c.Status == StatusRunning
}

// CanRemove reports whether Remove is legal without forcing. Running or
// mid-build containers must be stopped (or forced) first.
func (c *ContainerState) CanRemove(force bool) bool {
	if force {
		return true
	}
	return c.Status != StatusRunning && c.Status != StatusBuilding
}

// StateStore is the top-level persisted document.
type StateStore struct {
	Version    int                       `json:"version"`
	Containers map[string]*ContainerState `json:"containers"`
}

// CurrentVersion is the version this build writes. Loading a store with a
// higher version is accepted (with a warning), never refused: a newer devc
// binary may have added fields this build doesn't understand, and refusing
// to load would strand the user's registry.
const CurrentVersion = 1

func newStore() *StateStore {
	return &StateStore{
		Version:    CurrentVersion,
		Containers: make(map[string]*ContainerState),
	}
}
