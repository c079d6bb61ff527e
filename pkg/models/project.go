// Package models holds the data types shared across the orchestrator's
// components: the Project aggregate, the transient image-resolution value,
// and the provider credential record.
package models

import "time"

// ProjectStatus is the project lifecycle state machine's status.
type ProjectStatus string

const (
	StatusProvisioning ProjectStatus = "provisioning"
	StatusStopped      ProjectStatus = "stopped"
	StatusRunning      ProjectStatus = "running"
	StatusError        ProjectStatus = "error"
	StatusDeleting     ProjectStatus = "deleting"
)

// Project is the root aggregate. Identity fields (ProjectID, Slug,
// ForgeRepoID, ForgeOwner, PlatformAppUUID, ContainerPort) are immutable
// after creation. Status, StatusDetail, FQDNURL, LLMProviderID, LLMModelID
// are mutable, owned exclusively by the orchestrator (status/credentials)
// and the assistant proxy (FQDN caching).
type Project struct {
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Description string `json:"description,omitempty"`

	ForgeRepoID      string `json:"forge_repo_id"`
	ForgeOwner       string `json:"forge_owner"`
	PlatformAppUUID  string `json:"platform_app_uuid"`
	ContainerPort    int    `json:"container_port"`

	Status       ProjectStatus `json:"status"`
	StatusDetail string        `json:"status_detail,omitempty"`
	FQDNURL      string        `json:"fqdn_url,omitempty"`

	LLMProviderID string `json:"llm_provider_id,omitempty"`
	LLMModelID    string `json:"llm_model_id,omitempty"`

	// CloneURLPublic is derived: the forge-internal clone URL transformed
	// to its public HTTPS form, handed to spawned containers.
	CloneURLPublic string `json:"clone_url_public,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ProjectWithStatus merges the stored project with the platform's live
// container status.
type ProjectWithStatus struct {
	Project
	ContainerStatus string `json:"container_status"`
}

// ImageResolution is the transient value produced by C3. Only the derived
// port/FQDN fields are ever persisted (onto Project); the rest is used
// in-flight during the create saga and discarded.
type ImageResolution struct {
	ImageRef       string
	ExposedPorts   []int
	ResourceLimits ResourceLimits
	DomainsConfig  string
	RequiresGPU    bool
	Warnings       []string
}

// ResourceLimits mirrors a resource_tiers row.
type ResourceLimits struct {
	TierID        string
	CPUMillicores int
	MemoryMB      int
	GPU           bool
}

// ProviderRecord is C4's internal representation of an LLM provider. Its
// CredentialMaterial is opaque to every other component; only the vault
// reads it.
type ProviderRecord struct {
	ProviderID         string
	Kind               string
	CredentialMaterial string // opaque blob; e.g. pre-serialized auth JSON
	IsDefault          bool
}

// EnvVar mirrors a platform env-var record, including the preview-twin
// flag callers must filter on.
type EnvVar struct {
	UUID      string
	Key       string
	Value     string
	IsPreview bool
}
