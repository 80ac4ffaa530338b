// Package errors provides structured error handling for devc.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category represents the error category.
type Category string

// Error categories.
const (
	CategoryConfig    Category = "configuration"
	CategoryDocker    Category = "docker"
	CategoryFeatures  Category = "features"
	CategoryLifecycle Category = "lifecycle"
	CategoryNetwork   Category = "network"
	CategoryBuild     Category = "build"
	CategoryCompose   Category = "compose"
	CategoryOCI       Category = "oci"
	CategoryIO        Category = "io"
	CategoryInternal  Category = "internal"
	CategoryState     Category = "state"
	CategoryInvalid   Category = "invalid_state"
)

// Error codes for each category.
const (
	// Config errors
	CodeConfigNotFound       = "CONFIG_NOT_FOUND"
	CodeConfigInvalid        = "CONFIG_INVALID"
	CodeConfigParse          = "CONFIG_PARSE"
	CodeConfigValidation     = "CONFIG_VALIDATION"
	CodeConfigMissing        = "CONFIG_MISSING"
	CodeConfigUnsupported    = "CONFIG_UNSUPPORTED"

	// Docker errors
	CodeDockerNotRunning     = "DOCKER_NOT_RUNNING"
	CodeDockerConnect        = "DOCKER_CONNECT"
	CodeDockerAPI            = "DOCKER_API"
	CodeDockerImage          = "DOCKER_IMAGE"
	CodeDockerContainer      = "DOCKER_CONTAINER"
	CodeDockerVolume         = "DOCKER_VOLUME"
	CodeDockerNetwork        = "DOCKER_NETWORK"

	// Feature errors
	CodeFeatureNotFound      = "FEATURE_NOT_FOUND"
	CodeFeatureResolve       = "FEATURE_RESOLVE"
	CodeFeatureInstall       = "FEATURE_INSTALL"
	CodeFeatureDependency    = "FEATURE_DEPENDENCY"
	CodeFeatureCycle         = "FEATURE_CYCLE"
	CodeFeatureInvalid       = "FEATURE_INVALID"

	// Lifecycle errors
	CodeLifecycleHook        = "LIFECYCLE_HOOK"
	CodeLifecycleTimeout     = "LIFECYCLE_TIMEOUT"
	CodeLifecycleFailed      = "LIFECYCLE_FAILED"

	// Build errors
	CodeBuildFailed          = "BUILD_FAILED"
	CodeBuildContext         = "BUILD_CONTEXT"
	CodeBuildDockerfile      = "BUILD_DOCKERFILE"

	// Compose errors
	CodeComposeNotFound      = "COMPOSE_NOT_FOUND"
	CodeComposeInvalid       = "COMPOSE_INVALID"
	CodeComposeService       = "COMPOSE_SERVICE"

	// OCI errors
	CodeOCIRegistry          = "OCI_REGISTRY"
	CodeOCIPull              = "OCI_PULL"
	CodeOCIPush              = "OCI_PUSH"
	CodeOCIAuth              = "OCI_AUTH"

	// IO errors
	CodeFileNotFound         = "FILE_NOT_FOUND"
	CodeFileRead             = "FILE_READ"
	CodeFileWrite            = "FILE_WRITE"
	CodeDirNotFound          = "DIR_NOT_FOUND"

	// Internal errors
	CodeInternal             = "INTERNAL"
	CodeNotImplemented       = "NOT_IMPLEMENTED"

	// State store errors
	CodeStateLoad            = "STATE_LOAD"
	CodeStateSave            = "STATE_SAVE"
	CodeStateLockTimeout     = "STATE_LOCK_TIMEOUT"

	// Invalid-state / lookup errors
	CodeInvalidState         = "INVALID_STATE"
	CodeNotConnected         = "NOT_CONNECTED"
	CodeContainerNotFound    = "CONTAINER_NOT_FOUND"
	CodeContainerExists      = "CONTAINER_EXISTS"
)

// DEVCError is a structured error with category, code, and user-friendly hints.
type DEVCError struct {
	Category Category
	Code     string
	Message  string
	Cause    error
	Hint     string
	DocURL   string
	Context  map[string]string
}

// Error implements the error interface.
func (e *DEVCError) Error() string {
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DEVCError) Unwrap() error {
	return e.Cause
}

// UserFriendly returns a user-friendly error message with hints.
func (e *DEVCError) UserFriendly() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Cause: %s\n", e.Cause.Error()))
	}

	if e.Hint != "" {
		sb.WriteString(fmt.Sprintf("\nHint: %s\n", e.Hint))
	}

	if e.DocURL != "" {
		sb.WriteString(fmt.Sprintf("\nDocumentation: %s\n", e.DocURL))
	}

	if len(e.Context) > 0 {
		sb.WriteString("\nContext:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
	}

	return sb.String()
}

// WithCause adds a cause to the error.
func (e *DEVCError) WithCause(cause error) *DEVCError {
	e.Cause = cause
	return e
}

// WithHint adds a hint to the error.
func (e *DEVCError) WithHint(hint string) *DEVCError {
	e.Hint = hint
	return e
}

// WithContext adds context to the error.
func (e *DEVCError) WithContext(key, value string) *DEVCError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// New creates a new DEVCError.
func New(category Category, code string, message string) *DEVCError {
	return &DEVCError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  make(map[string]string),
	}
}

// Newf creates a new DEVCError with formatted message.
func Newf(category Category, code string, format string, args ...interface{}) *DEVCError {
	return &DEVCError{
		Category: category,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Context:  make(map[string]string),
	}
}

// Wrap wraps an existing error as a DEVCError.
func Wrap(err error, category Category, code string, message string) *DEVCError {
	return &DEVCError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]string),
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, category Category, code string, format string, args ...interface{}) *DEVCError {
	return &DEVCError{
		Category: category,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Cause:    err,
		Context:  make(map[string]string),
	}
}

// Is checks if the error is a DEVCError with the given code.
func Is(err error, code string) bool {
	var devcErr *DEVCError
	if errors.As(err, &devcErr) {
		return devcErr.Code == code
	}
	return false
}

// GetCategory returns the category of a DEVCError, or empty string if not a DEVCError.
func GetCategory(err error) Category {
	var devcErr *DEVCError
	if errors.As(err, &devcErr) {
		return devcErr.Category
	}
	return ""
}

// GetCode returns the code of a DEVCError, or empty string if not a DEVCError.
func GetCode(err error) string {
	var devcErr *DEVCError
	if errors.As(err, &devcErr) {
		return devcErr.Code
	}
	return ""
}

// AsDEVCError attempts to convert an error to a DEVCError.
func AsDEVCError(err error) (*DEVCError, bool) {
	var devcErr *DEVCError
	if errors.As(err, &devcErr) {
		return devcErr, true
	}
	return nil, false
}

// Common pre-defined errors.
var (
	// Config errors
	ErrConfigNotFound = &DEVCError{
		Category: CategoryConfig,
		Code:     CodeConfigNotFound,
		Message:  "devcontainer.json not found",
		Hint:     "Create a devcontainer.json file in .devcontainer/ directory or run from a directory containing one",
		DocURL:   "https://containers.dev/implementors/json_reference/",
	}

	ErrConfigInvalid = &DEVCError{
		Category: CategoryConfig,
		Code:     CodeConfigInvalid,
		Message:  "devcontainer.json is invalid",
		Hint:     "Check the JSON syntax and ensure all required fields are present",
		DocURL:   "https://containers.dev/implementors/json_reference/",
	}

	// Docker errors
	ErrDockerNotRunning = &DEVCError{
		Category: CategoryDocker,
		Code:     CodeDockerNotRunning,
		Message:  "Docker daemon is not running",
		Hint:     "Start Docker Desktop or the Docker daemon service",
	}

	ErrDockerConnect = &DEVCError{
		Category: CategoryDocker,
		Code:     CodeDockerConnect,
		Message:  "Failed to connect to Docker",
		Hint:     "Ensure Docker is running and you have permission to access the Docker socket",
	}

	// Feature errors
	ErrFeatureNotFound = &DEVCError{
		Category: CategoryFeatures,
		Code:     CodeFeatureNotFound,
		Message:  "Feature not found",
		Hint:     "Check the feature reference and ensure it exists in the registry",
		DocURL:   "https://containers.dev/features",
	}

	ErrFeatureCycle = &DEVCError{
		Category: CategoryFeatures,
		Code:     CodeFeatureCycle,
		Message:  "Circular dependency detected in features",
		Hint:     "Review feature dependencies and remove the cycle",
	}

	// Compose errors
	ErrComposeNotFound = &DEVCError{
		Category: CategoryCompose,
		Code:     CodeComposeNotFound,
		Message:  "docker-compose.yml not found",
		Hint:     "Ensure the dockerComposeFile path in devcontainer.json is correct",
	}

	ErrComposeServiceNotFound = &DEVCError{
		Category: CategoryCompose,
		Code:     CodeComposeService,
		Message:  "Service not found in docker-compose.yml",
		Hint:     "Ensure the service name in devcontainer.json matches a service in docker-compose.yml",
	}

	// Lifecycle errors
	ErrLifecycleTimeout = &DEVCError{
		Category: CategoryLifecycle,
		Code:     CodeLifecycleTimeout,
		Message:  "Lifecycle hook timed out",
		Hint:     "The command took too long to execute. Consider optimizing the command or increasing the timeout",
	}
)

// Clone creates a copy of the error that can be modified without affecting the original.
func (e *DEVCError) Clone() *DEVCError {
	clone := &DEVCError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    e.Cause,
		Hint:     e.Hint,
		DocURL:   e.DocURL,
		Context:  make(map[string]string),
	}
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	return clone
}

// Config errors constructors.

// ConfigNotFound creates a config not found error.
func ConfigNotFound(path string) *DEVCError {
	return ErrConfigNotFound.Clone().WithContext("path", path)
}

// ConfigInvalid creates a config invalid error.
func ConfigInvalid(path string, cause error) *DEVCError {
	return ErrConfigInvalid.Clone().WithCause(cause).WithContext("path", path)
}

// ConfigParse creates a config parse error.
func ConfigParse(path string, cause error) *DEVCError {
	return Wrap(cause, CategoryConfig, CodeConfigParse, "failed to parse configuration").
		WithContext("path", path).
		WithHint("Check for JSON syntax errors in the configuration file")
}

// ConfigValidation creates a validation error.
func ConfigValidation(message string) *DEVCError {
	return New(CategoryConfig, CodeConfigValidation, message).
		WithHint("Review the devcontainer.json specification")
}

// Docker errors constructors.

// DockerNotRunning creates a docker not running error.
func DockerNotRunning(cause error) *DEVCError {
	return ErrDockerNotRunning.Clone().WithCause(cause)
}

// DockerAPI creates a docker API error.
func DockerAPI(operation string, cause error) *DEVCError {
	return Wrap(cause, CategoryDocker, CodeDockerAPI, fmt.Sprintf("Docker API error during %s", operation))
}

// DockerImage creates a docker image error.
func DockerImage(image string, cause error) *DEVCError {
	return Wrap(cause, CategoryDocker, CodeDockerImage, fmt.Sprintf("failed to pull image %s", image)).
		WithContext("image", image).
		WithHint("Check that the image exists and you have permission to pull it")
}

// DockerContainer creates a docker container error.
func DockerContainer(container string, operation string, cause error) *DEVCError {
	return Wrap(cause, CategoryDocker, CodeDockerContainer, fmt.Sprintf("container %s: %s failed", container, operation)).
		WithContext("container", container).
		WithContext("operation", operation)
}

// Feature errors constructors.

// FeatureNotFound creates a feature not found error.
func FeatureNotFound(feature string) *DEVCError {
	return ErrFeatureNotFound.Clone().
		WithContext("feature", feature).
		WithHint(fmt.Sprintf("Check that feature %q exists and the reference is correct", feature))
}

// FeatureResolve creates a feature resolve error.
func FeatureResolve(feature string, cause error) *DEVCError {
	return Wrap(cause, CategoryFeatures, CodeFeatureResolve, fmt.Sprintf("failed to resolve feature %s", feature)).
		WithContext("feature", feature)
}

// FeatureInstall creates a feature install error.
func FeatureInstall(feature string, cause error) *DEVCError {
	return Wrap(cause, CategoryFeatures, CodeFeatureInstall, fmt.Sprintf("failed to install feature %s", feature)).
		WithContext("feature", feature).
		WithHint("Check the feature logs for more details")
}

// FeatureDependency creates a feature dependency error.
func FeatureDependency(feature string, dependency string) *DEVCError {
	return Newf(CategoryFeatures, CodeFeatureDependency, "feature %s requires dependency %s", feature, dependency).
		WithContext("feature", feature).
		WithContext("dependency", dependency).
		WithHint("Add the missing dependency to your features list")
}

// FeatureCycle creates a feature cycle error.
func FeatureCycle(features []string) *DEVCError {
	return ErrFeatureCycle.Clone().
		WithContext("cycle", strings.Join(features, " -> "))
}

// Lifecycle errors constructors.

// LifecycleHook creates a lifecycle hook error.
func LifecycleHook(hook string, cause error) *DEVCError {
	return Wrap(cause, CategoryLifecycle, CodeLifecycleHook, fmt.Sprintf("%s hook failed", hook)).
		WithContext("hook", hook)
}

// LifecycleTimeout creates a lifecycle timeout error.
func LifecycleTimeout(hook string, timeout string) *DEVCError {
	return ErrLifecycleTimeout.Clone().
		WithContext("hook", hook).
		WithContext("timeout", timeout)
}

// Build errors constructors.

// BuildFailed creates a build failed error.
func BuildFailed(cause error) *DEVCError {
	return Wrap(cause, CategoryBuild, CodeBuildFailed, "image build failed").
		WithHint("Check the build output for errors")
}

// BuildDockerfile creates a dockerfile build error.
func BuildDockerfile(dockerfile string, cause error) *DEVCError {
	return Wrap(cause, CategoryBuild, CodeBuildDockerfile, "failed to build Dockerfile").
		WithContext("dockerfile", dockerfile)
}

// Compose errors constructors.

// ComposeNotFound creates a compose file not found error.
func ComposeNotFound(path string) *DEVCError {
	return ErrComposeNotFound.Clone().WithContext("path", path)
}

// ComposeService creates a compose service error.
func ComposeService(service string, cause error) *DEVCError {
	return Wrap(cause, CategoryCompose, CodeComposeService, fmt.Sprintf("service %s error", service)).
		WithContext("service", service)
}

// OCI errors constructors.

// OCIRegistry creates an OCI registry error.
func OCIRegistry(registry string, cause error) *DEVCError {
	return Wrap(cause, CategoryOCI, CodeOCIRegistry, fmt.Sprintf("registry %s error", registry)).
		WithContext("registry", registry)
}

// OCIPull creates an OCI pull error.
func OCIPull(reference string, cause error) *DEVCError {
	return Wrap(cause, CategoryOCI, CodeOCIPull, fmt.Sprintf("failed to pull %s", reference)).
		WithContext("reference", reference).
		WithHint("Check network connectivity and that the artifact exists")
}

// OCIAuth creates an OCI auth error.
func OCIAuth(registry string, cause error) *DEVCError {
	return Wrap(cause, CategoryOCI, CodeOCIAuth, fmt.Sprintf("authentication failed for %s", registry)).
		WithContext("registry", registry).
		WithHint("Ensure you are logged in to the registry (docker login)")
}

// IO errors constructors.

// FileNotFound creates a file not found error.
func FileNotFound(path string) *DEVCError {
	return Newf(CategoryIO, CodeFileNotFound, "file not found: %s", path).
		WithContext("path", path)
}

// FileRead creates a file read error.
func FileRead(path string, cause error) *DEVCError {
	return Wrap(cause, CategoryIO, CodeFileRead, fmt.Sprintf("failed to read file: %s", path)).
		WithContext("path", path)
}

// FileWrite creates a file write error.
func FileWrite(path string, cause error) *DEVCError {
	return Wrap(cause, CategoryIO, CodeFileWrite, fmt.Sprintf("failed to write file: %s", path)).
		WithContext("path", path)
}

// Internal errors constructors.

// Internal creates an internal error.
func Internal(message string, cause error) *DEVCError {
	return Wrap(cause, CategoryInternal, CodeInternal, message).
		WithHint("This is an internal error. Please report it at https://github.com/kestrel-dev/devc/issues")
}

// NotImplemented creates a not implemented error.
func NotImplemented(feature string) *DEVCError {
	return Newf(CategoryInternal, CodeNotImplemented, "feature not implemented: %s", feature).
		WithContext("feature", feature)
}

// State store, lifecycle, and lookup error constructors.
//
// These cover the error kinds the registry and manager packages surface:
// StateError (load/save/lock failures), InvalidState (an operation
// attempted from a status that forbids it), NotConnected (the requested
// provider type isn't reachable), and the ContainerNotFound/ContainerExists
// identity errors.

// NewStateError creates a state-store error (load, save, or lock failure).
func NewStateError(message string, cause error) *DEVCError {
	return Wrap(cause, CategoryState, CodeStateLoad, message)
}

// NewStateLockTimeout creates a lock-acquisition-timeout error.
func NewStateLockTimeout(path string) *DEVCError {
	return Newf(CategoryState, CodeStateLockTimeout, "timed out waiting for state lock on %s", path).
		WithContext("path", path).
		WithHint("Another devc process may be holding the lock; retry once it finishes")
}

// NewInvalidStateError creates an error for an operation that is not legal
// from the container's current status.
func NewInvalidStateError(message string, cause error) *DEVCError {
	return Wrap(cause, CategoryInvalid, CodeInvalidState, message)
}

// NewNotConnectedError creates an error for a provider type that isn't
// reachable in the current process.
func NewNotConnectedError(provider string, cause error) *DEVCError {
	return Wrap(cause, CategoryDocker, CodeNotConnected, fmt.Sprintf("provider %s is not connected", provider)).
		WithContext("provider", provider)
}

// NewContainerNotFound creates an identity-lookup error for a missing
// tracked container.
func NewContainerNotFound(id string) *DEVCError {
	return Newf(CategoryState, CodeContainerNotFound, "no tracked container matches %q", id).
		WithContext("id", id)
}

// NewContainerExists creates an identity error for a duplicate config path.
func NewContainerExists(configPath string) *DEVCError {
	return Newf(CategoryState, CodeContainerExists, "a container is already registered for %s", configPath).
		WithContext("config_path", configPath)
}
