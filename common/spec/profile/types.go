// Package profile defines the Business/Profile Pack schema (v1): the
// per-tenant, additive bundle of templates, policies, command mappings, and
// event projections a vertical profile backend supplies to Core. A profile
// pack is read-only to Core — it may never mutate Core envelopes or
// business logic, only parameterize them.
package profile

// SpecVersion is the API version string required in every profile pack.
const SpecVersion = "aro-profile/v1"

// Pack is the root type for a tenant's Business/Profile Pack.
type Pack struct {
	// APIVersion must be "aro-profile/v1".
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// Metadata holds descriptive identification for the pack.
	Metadata Metadata `yaml:"metadata" json:"metadata"`

	// Messaging configures customer-facing messaging defaults and limits.
	Messaging Messaging `yaml:"messaging,omitempty" json:"messaging,omitempty"`

	// Limits defines rate and risk-scoring parameters for this tenant.
	Limits Limits `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Templates maps a template name to message bodies keyed by channel.
	Templates []Template `yaml:"templates,omitempty" json:"templates,omitempty"`

	// CommandMappings maps a workflow trigger name to the integration
	// command it should enqueue.
	CommandMappings []CommandMapping `yaml:"commandMappings,omitempty" json:"commandMappings,omitempty"`

	// EventProjections lists canonical event types this tenant's profile
	// backend consumes, purely informational to Core (used to validate
	// subscription requests against a known projection set).
	EventProjections []string `yaml:"eventProjections,omitempty" json:"eventProjections,omitempty"`
}

// Metadata identifies a profile pack.
type Metadata struct {
	// TenantID must match the X-Tenant-Id this pack applies to.
	TenantID string `yaml:"tenantId" json:"tenantId"`

	// Vertical is a human label for the business vertical (e.g. "health",
	// "salon", "legal").
	Vertical string `yaml:"vertical,omitempty" json:"vertical,omitempty"`

	// Description is a human-readable summary of the pack's purpose.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Messaging configures per-tenant messaging defaults.
type Messaging struct {
	// MaxMessagesPerCustomerPer24h overrides the default customer message
	// cap (spec default: 3). 0 means "use the default".
	MaxMessagesPerCustomerPer24h int `yaml:"maxMessagesPerCustomerPer24h,omitempty" json:"maxMessagesPerCustomerPer24h,omitempty"`

	// ReminderOffsets lists the offsets (before appointment time) at which
	// reminders are scheduled, e.g. ["48h", "24h", "6h"].
	ReminderOffsets []string `yaml:"reminderOffsets,omitempty" json:"reminderOffsets,omitempty"`

	// DefaultTimezone is used when neither the appointment nor the customer
	// carries a resolved IANA timezone.
	DefaultTimezone string `yaml:"defaultTimezone,omitempty" json:"defaultTimezone,omitempty"`
}

// Limits defines tenant-specific rate and risk-scoring parameters.
type Limits struct {
	// DepositThreshold is the riskScore at/above which requiresDeposit is
	// set. 0 means "use the system default".
	DepositThreshold int `yaml:"depositThreshold,omitempty" json:"depositThreshold,omitempty"`

	// TenantRateLimitPerMinute overrides the Executor per-tenant token
	// bucket rate for this tenant specifically. 0 means "use the configured
	// default".
	TenantRateLimitPerMinute int `yaml:"tenantRateLimitPerMinute,omitempty" json:"tenantRateLimitPerMinute,omitempty"`
}

// Template is a named message body, selected by workflow code and rendered
// with appointment/customer fields.
type Template struct {
	// Name is the template identifier referenced by command mappings and
	// workflow code (e.g. "reminder_48h").
	Name string `yaml:"name" json:"name"`

	// Channel the template applies to (e.g. "sms").
	Channel string `yaml:"channel" json:"channel"`

	// Body is the template body; placeholders use {{field}} syntax.
	Body string `yaml:"body" json:"body"`
}

// CommandMapping maps a workflow trigger name to the integration command it
// enqueues, with an optional static payload overlay.
type CommandMapping struct {
	// Trigger is the workflow trigger name (e.g. "reminder.48h").
	Trigger string `yaml:"trigger" json:"trigger"`

	// CommandType is the integration.* command type enqueued when Trigger
	// fires.
	CommandType string `yaml:"commandType" json:"commandType"`

	// Template is the template name used to render the message payload, if
	// applicable.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
}
