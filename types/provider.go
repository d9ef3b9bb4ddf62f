package types

import (
	"time"

	"github.com/google/uuid"
)

// Infrastructure classifies where a provider's resources live.
type Infrastructure string

const (
	InfraPublicCloud  Infrastructure = "public_cloud"
	InfraPrivateCloud Infrastructure = "private_cloud"
	InfraOnPremise    Infrastructure = "on_premise"
)

// Provider is a configured connection to one external infrastructure
// source (a vCenter, a cloud account, a container platform). Every
// resource in the catalog belongs to exactly one provider.
type Provider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Vendor       string `json:"vendor"`
	ProviderType string `json:"provider_type"`

	Infrastructure Infrastructure `json:"infrastructure"`

	// Endpoint is the connection URL or host[:port] for the remote system.
	Endpoint string `json:"endpoint"`

	// CredentialRef points at an external secret, never the secret itself.
	CredentialRef string `json:"credential_ref,omitempty"`

	Enabled bool `json:"enabled"`

	// ConnectionConfig holds vendor-specific connection parameters
	// (datacenter, tenant, inventory file path, ...). Opaque to the core.
	ConnectionConfig map[string]string `json:"connection_config,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
}

// PluginKey is the registry lookup key for this provider's collector.
func (p *Provider) PluginKey() string {
	return p.Vendor + ":" + p.ProviderType
}

// NewProvider creates an enabled provider with a fresh ID.
func NewProvider(name, vendor, providerType string) Provider {
	return Provider{
		ID:           uuid.NewString(),
		Name:         name,
		Vendor:       vendor,
		ProviderType: providerType,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}
}
