package providers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes one collector plugin. Built-in plugins declare it
// in code; external plugin directories carry a manifest.yml in the
// same shape plus a driver binding.
type Manifest struct {
	Vendor       string `yaml:"vendor" json:"vendor"`
	ProviderType string `yaml:"provider_type" json:"provider_type"`

	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version"`

	Infrastructure string `yaml:"infrastructure,omitempty" json:"infrastructure,omitempty"`

	SupportedResourceTypes []string `yaml:"supported_resource_types" json:"supported_resource_types"`

	// ConnectionParameters documents the keys a provider's
	// connection_config may carry. Advisory, consulted by operators
	// and the connection test UI.
	ConnectionParameters []ConnectionParameter `yaml:"connection_parameters,omitempty" json:"connection_parameters,omitempty"`

	// Driver names the compiled-in collector family an external
	// manifest binds to. Empty for built-ins.
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`

	// Dependencies lists declared dependency files shipped alongside
	// an external plugin directory.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// ConnectionParameter documents one connection_config key.
type ConnectionParameter struct {
	Name     string `yaml:"name" json:"name"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Secret   bool   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Help     string `yaml:"help,omitempty" json:"help,omitempty"`
}

// Key is the registry key, vendor:provider_type.
func (m Manifest) Key() string {
	return m.Vendor + ":" + m.ProviderType
}

// SupportsType reports whether the plugin can collect a type slug.
func (m Manifest) SupportsType(slug string) bool {
	for _, t := range m.SupportedResourceTypes {
		if t == slug {
			return true
		}
	}
	return false
}

func (m Manifest) validate() error {
	if m.Vendor == "" || m.ProviderType == "" {
		return fmt.Errorf("manifest must set vendor and provider_type")
	}
	if len(m.SupportedResourceTypes) == 0 {
		return fmt.Errorf("manifest %s declares no supported resource types", m.Key())
	}
	return nil
}

// loadManifestFile parses a plugin directory's manifest.yml.
func loadManifestFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- plugins dir is operator-controlled
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
