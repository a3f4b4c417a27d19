package models

// Capability flags a model can advertise
const (
	CapabilityVision      = "vision"
	CapabilityToolUse     = "tool_use"
	CapabilityLongContext = "long_context"
	CapabilityCode        = "code"
	CapabilityStreaming   = "streaming"
)

// ModelDescriptor is the static catalog entry for one backend model.
// Descriptors are immutable after registry load; availability is checked
// separately against live vendor configuration.
type ModelDescriptor struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Vendor          string   `json:"vendor"`
	Family          string   `json:"family"`
	Tier            string   `json:"tier"` // "flagship", "balanced", "fast"
	Capabilities    []string `json:"capabilities"`
	ContextWindow   int      `json:"context_window"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	InputCostPerM   float64  `json:"input_cost_per_million"`
	OutputCostPerM  float64  `json:"output_cost_per_million"`
}

// HasCapability reports whether the descriptor advertises a capability
func (m *ModelDescriptor) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// CatalogConfig is the models.json file structure
type CatalogConfig struct {
	Models []ModelDescriptor `json:"models"`
}
