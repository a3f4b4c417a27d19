package services

import (
	"errors"
	"testing"

	"modelmux/internal/models"
)

func newTestRegistry() *RegistryService {
	return NewRegistryService(nil, []string{"openai", "anthropic", "groq", "deepseek"})
}

func TestRegistryLookup(t *testing.T) {
	registry := newTestRegistry()

	desc, err := registry.Lookup("claude-sonnet-4")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if desc.Vendor != "anthropic" {
		t.Errorf("expected vendor anthropic, got %s", desc.Vendor)
	}
	if desc.InputCostPerM != 3.00 || desc.OutputCostPerM != 15.00 {
		t.Errorf("unexpected pricing: %.2f/%.2f", desc.InputCostPerM, desc.OutputCostPerM)
	}

	_, err = registry.Lookup("no-such-model")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestRegistryListByCapability(t *testing.T) {
	registry := newTestRegistry()

	visionModels := registry.ListByCapability(models.CapabilityVision)
	if len(visionModels) == 0 {
		t.Fatal("expected at least one vision model")
	}
	for _, desc := range visionModels {
		if !desc.HasCapability(models.CapabilityVision) {
			t.Errorf("model %s listed without vision capability", desc.ID)
		}
	}

	// llama-3.3-70b has no vision capability
	for _, desc := range visionModels {
		if desc.ID == "llama-3.3-70b" {
			t.Error("llama-3.3-70b should not be listed as vision-capable")
		}
	}
}

func TestRegistryListByFamily(t *testing.T) {
	registry := newTestRegistry()

	claudes := registry.ListByFamily("claude")
	if len(claudes) != 2 {
		t.Fatalf("expected 2 claude models, got %d", len(claudes))
	}

	// Family match is case-insensitive
	if len(registry.ListByFamily("Claude")) != 2 {
		t.Error("family match should be case-insensitive")
	}
}

func TestRegistryVendorAvailability(t *testing.T) {
	registry := NewRegistryService(nil, []string{"openai"})

	if !registry.IsModelAvailable("gpt-4o") {
		t.Error("gpt-4o should be available with openai configured")
	}
	if registry.IsModelAvailable("claude-sonnet-4") {
		t.Error("claude-sonnet-4 should be unavailable without anthropic configured")
	}
	if registry.IsModelAvailable("no-such-model") {
		t.Error("unknown model should never be available")
	}

	// Availability flips at runtime without a registry reload
	registry.SetVendorAvailable("anthropic", true)
	if !registry.IsModelAvailable("claude-sonnet-4") {
		t.Error("claude-sonnet-4 should be available after enabling anthropic")
	}

	registry.SetVendorAvailable("openai", false)
	if registry.IsModelAvailable("gpt-4o") {
		t.Error("gpt-4o should be unavailable after disabling openai")
	}
}

func TestRegistryCatalogOverlay(t *testing.T) {
	catalog := &models.CatalogConfig{
		Models: []models.ModelDescriptor{
			{
				ID:             "gpt-4o-mini",
				DisplayName:    "GPT-4o mini (custom pricing)",
				Vendor:         "openai",
				Family:         "gpt",
				InputCostPerM:  0.10,
				OutputCostPerM: 0.40,
			},
			{
				ID:          "custom-model",
				DisplayName: "Custom Model",
				Vendor:      "openai",
				Family:      "custom",
			},
		},
	}

	registry := NewRegistryService(catalog, []string{"openai"})

	// Overlay replaces the built-in descriptor
	desc, err := registry.Lookup("gpt-4o-mini")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if desc.InputCostPerM != 0.10 {
		t.Errorf("overlay pricing not applied: %.2f", desc.InputCostPerM)
	}

	if _, err := registry.Lookup("custom-model"); err != nil {
		t.Errorf("overlay model not registered: %v", err)
	}
}
