package profile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a profile pack YAML document and validates it. It is the
// canonical entry point for loading a tenant's Business/Profile Pack.
func Parse(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("profile parse: %w", err)
	}
	if err := Validate(&pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// Validate checks a Pack for structural correctness without applying it.
func Validate(p *Pack) error {
	if p == nil {
		return fmt.Errorf("pack must not be nil")
	}

	if p.APIVersion != SpecVersion {
		return fmt.Errorf("apiVersion must be %q, got %q", SpecVersion, p.APIVersion)
	}

	if strings.TrimSpace(p.Metadata.TenantID) == "" {
		return fmt.Errorf("metadata.tenantId must not be empty")
	}

	if p.Limits.DepositThreshold < 0 || p.Limits.DepositThreshold > 100 {
		return fmt.Errorf("limits.depositThreshold must be in [0,100]")
	}
	if p.Limits.TenantRateLimitPerMinute < 0 {
		return fmt.Errorf("limits.tenantRateLimitPerMinute must be >= 0")
	}
	if p.Messaging.MaxMessagesPerCustomerPer24h < 0 {
		return fmt.Errorf("messaging.maxMessagesPerCustomerPer24h must be >= 0")
	}

	seenTemplates := make(map[string]struct{}, len(p.Templates))
	for i, tmpl := range p.Templates {
		if err := validateTemplate(tmpl); err != nil {
			return fmt.Errorf("templates[%d] (%q): %w", i, tmpl.Name, err)
		}
		if _, dup := seenTemplates[tmpl.Name]; dup {
			return fmt.Errorf("templates[%d]: duplicate name %q", i, tmpl.Name)
		}
		seenTemplates[tmpl.Name] = struct{}{}
	}

	for i, mapping := range p.CommandMappings {
		if err := validateCommandMapping(mapping); err != nil {
			return fmt.Errorf("commandMappings[%d]: %w", i, err)
		}
		if mapping.Template != "" {
			if _, ok := seenTemplates[mapping.Template]; !ok {
				return fmt.Errorf("commandMappings[%d]: template %q is not declared in templates", i, mapping.Template)
			}
		}
	}

	return nil
}

func validateTemplate(t Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.TrimSpace(t.Channel) == "" {
		return fmt.Errorf("channel must not be empty")
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("body must not be empty")
	}
	return nil
}

func validateCommandMapping(m CommandMapping) error {
	if strings.TrimSpace(m.Trigger) == "" {
		return fmt.Errorf("trigger must not be empty")
	}
	if !strings.HasPrefix(m.CommandType, "integration.") {
		return fmt.Errorf("commandType %q must start with \"integration.\"", m.CommandType)
	}
	return nil
}
