package services

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"modelmux/internal/models"
)

// ErrModelNotFound is returned by Lookup for unknown model ids
var ErrModelNotFound = fmt.Errorf("model not found")

// RegistryService is the static model catalog plus the one mutable piece of
// registry state: which vendors currently have a configured backend client.
type RegistryService struct {
	descriptors map[string]*models.ModelDescriptor
	order       []string // catalog order, for deterministic listings

	mu      sync.RWMutex
	vendors map[string]bool // vendor -> client configured
}

// NewRegistryService creates a registry from the built-in catalog, optionally
// overlaid with descriptors from a catalog file, with the given vendors
// marked as configured.
func NewRegistryService(catalog *models.CatalogConfig, configuredVendors []string) *RegistryService {
	s := &RegistryService{
		descriptors: make(map[string]*models.ModelDescriptor),
		vendors:     make(map[string]bool),
	}

	for _, desc := range defaultCatalog() {
		s.add(desc)
	}

	if catalog != nil {
		for _, desc := range catalog.Models {
			d := desc
			s.add(&d)
		}
	}

	for _, vendor := range configuredVendors {
		s.vendors[strings.ToLower(vendor)] = true
	}

	log.Printf("📋 [REGISTRY] Loaded %d models, %d vendors configured", len(s.descriptors), len(configuredVendors))
	return s
}

func (s *RegistryService) add(desc *models.ModelDescriptor) {
	if _, exists := s.descriptors[desc.ID]; !exists {
		s.order = append(s.order, desc.ID)
	}
	s.descriptors[desc.ID] = desc
}

// Lookup returns the descriptor for a model id
func (s *RegistryService) Lookup(modelID string) (*models.ModelDescriptor, error) {
	desc, ok := s.descriptors[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	return desc, nil
}

// ListByCapability returns all models advertising a capability, in catalog order
func (s *RegistryService) ListByCapability(capability string) []*models.ModelDescriptor {
	var result []*models.ModelDescriptor
	for _, id := range s.order {
		if s.descriptors[id].HasCapability(capability) {
			result = append(result, s.descriptors[id])
		}
	}
	return result
}

// ListByFamily returns all models in a family, in catalog order
func (s *RegistryService) ListByFamily(family string) []*models.ModelDescriptor {
	var result []*models.ModelDescriptor
	for _, id := range s.order {
		if strings.EqualFold(s.descriptors[id].Family, family) {
			result = append(result, s.descriptors[id])
		}
	}
	return result
}

// ListAll returns every descriptor in catalog order
func (s *RegistryService) ListAll() []*models.ModelDescriptor {
	result := make([]*models.ModelDescriptor, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.descriptors[id])
	}
	return result
}

// IsAvailable reports whether a descriptor's vendor currently has a
// configured backend client. Vendor availability can change at runtime
// without a registry reload.
func (s *RegistryService) IsAvailable(desc *models.ModelDescriptor) bool {
	if desc == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendors[strings.ToLower(desc.Vendor)]
}

// IsModelAvailable combines lookup and availability for a model id
func (s *RegistryService) IsModelAvailable(modelID string) bool {
	desc, err := s.Lookup(modelID)
	if err != nil {
		return false
	}
	return s.IsAvailable(desc)
}

// SetVendorAvailable marks a vendor's backend client as configured or not
func (s *RegistryService) SetVendorAvailable(vendor string, available bool) {
	s.mu.Lock()
	s.vendors[strings.ToLower(vendor)] = available
	s.mu.Unlock()
	log.Printf("🔌 [REGISTRY] Vendor %s availability set to %v", vendor, available)
}

// defaultCatalog is the built-in model catalog, used when no catalog file is
// provided and as the base the file overlays.
func defaultCatalog() []*models.ModelDescriptor {
	return []*models.ModelDescriptor{
		{
			ID:              "claude-sonnet-4",
			DisplayName:     "Claude Sonnet 4",
			Vendor:          "anthropic",
			Family:          "claude",
			Tier:            "flagship",
			Capabilities:    []string{models.CapabilityVision, models.CapabilityToolUse, models.CapabilityLongContext, models.CapabilityCode, models.CapabilityStreaming},
			ContextWindow:   200000,
			MaxOutputTokens: 64000,
			InputCostPerM:   3.00,
			OutputCostPerM:  15.00,
		},
		{
			ID:              "claude-haiku-3.5",
			DisplayName:     "Claude Haiku 3.5",
			Vendor:          "anthropic",
			Family:          "claude",
			Tier:            "fast",
			Capabilities:    []string{models.CapabilityVision, models.CapabilityToolUse, models.CapabilityStreaming},
			ContextWindow:   200000,
			MaxOutputTokens: 8192,
			InputCostPerM:   0.80,
			OutputCostPerM:  4.00,
		},
		{
			ID:              "gpt-4o",
			DisplayName:     "GPT-4o",
			Vendor:          "openai",
			Family:          "gpt",
			Tier:            "flagship",
			Capabilities:    []string{models.CapabilityVision, models.CapabilityToolUse, models.CapabilityCode, models.CapabilityStreaming},
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			InputCostPerM:   2.50,
			OutputCostPerM:  10.00,
		},
		{
			ID:              "gpt-4o-mini",
			DisplayName:     "GPT-4o mini",
			Vendor:          "openai",
			Family:          "gpt",
			Tier:            "fast",
			Capabilities:    []string{models.CapabilityVision, models.CapabilityToolUse, models.CapabilityStreaming},
			ContextWindow:   128000,
			MaxOutputTokens: 16384,
			InputCostPerM:   0.15,
			OutputCostPerM:  0.60,
		},
		{
			ID:              "llama-3.3-70b",
			DisplayName:     "Llama 3.3 70B",
			Vendor:          "groq",
			Family:          "llama",
			Tier:            "balanced",
			Capabilities:    []string{models.CapabilityToolUse, models.CapabilityCode, models.CapabilityStreaming},
			ContextWindow:   128000,
			MaxOutputTokens: 32768,
			InputCostPerM:   0.59,
			OutputCostPerM:  0.79,
		},
		{
			ID:              "deepseek-v3",
			DisplayName:     "DeepSeek V3",
			Vendor:          "deepseek",
			Family:          "deepseek",
			Tier:            "balanced",
			Capabilities:    []string{models.CapabilityToolUse, models.CapabilityCode, models.CapabilityLongContext, models.CapabilityStreaming},
			ContextWindow:   128000,
			MaxOutputTokens: 8192,
			InputCostPerM:   0.27,
			OutputCostPerM:  1.10,
		},
	}
}
