// Package common provides shared utilities and constants used across devc packages.
package common

const (
	// SSHHostSuffix is the suffix appended to workspace IDs for SSH host names.
	// SSH hosts are formatted as "<workspaceID>.devc" for easy access.
	SSHHostSuffix = ".devc"

	// HashTruncationLength is the number of characters used when truncating hashes for image tags.
	// This provides a good balance between uniqueness and readability.
	HashTruncationLength = 12

	// ImageTagPrefix is the prefix for devc-built images.
	// Format: devc/{workspaceID}:{hash}
	ImageTagPrefix = "devc/"

	// AgentBinaryPath is the path where devc-agent is deployed in containers.
	AgentBinaryPath = "/tmp/devc-agent"

	// SecretsDir is the directory where secrets are mounted in containers.
	SecretsDir = "/run/secrets"
)
