// Package manifest defines the permission manifest: the versioned allow-list
// of command types and side effects the Executor is authorized to run for a
// tenant. Core stamps the configured manifest version onto every executor
// command; Executor rejects anything carrying a stale version.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Manifest is the permission-manifest document. It is loaded once at
// Executor startup and never mutated at runtime.
type Manifest struct {
	Version         string   `json:"version"`
	AllowedTenants  []string `json:"allowedTenants"`
	AllowedCommands []string `json:"allowedCommands"`
}

// schemaDoc is the JSON Schema a manifest document must satisfy. It is kept
// alongside the Go struct (rather than generated from it) so the schema can
// be versioned and shipped independently. internal/core/httpapi does not use
// JSON Schema; it validates requests by decoding them into Go structs.
const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "allowedTenants", "allowedCommands"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "allowedTenants": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "allowedCommands": {"type": "array", "items": {"type": "string", "minLength": 1}}
  }
}`

const schemaURL = "https://aro.local/schemas/permission-manifest.json"

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
		panic(fmt.Sprintf("manifest: invalid embedded schema: %v", err))
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("manifest: schema compile failed: %v", err))
	}
	compiledSchema = schema
}

// Parse decodes and schema-validates a permission manifest document.
func Parse(data []byte) (*Manifest, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("manifest parse: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("manifest schema validation: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest decode: %w", err)
	}
	return &m, nil
}

// AllowsTenant reports whether tenantID appears in the manifest's tenant
// allow-list.
func (m *Manifest) AllowsTenant(tenantID string) bool {
	for _, t := range m.AllowedTenants {
		if t == tenantID {
			return true
		}
	}
	return false
}

// AllowsCommand reports whether commandType appears in the manifest's
// command allow-list.
func (m *Manifest) AllowsCommand(commandType string) bool {
	for _, c := range m.AllowedCommands {
		if c == commandType {
			return true
		}
	}
	return false
}
