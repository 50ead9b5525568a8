// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes an LLM the server can route to. The JSON shape is the
// server's model registry entry.
type ModelInfo struct {
	// ID is the model identifier used in send_message
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider is the backend serving the model (ollama, huggingface, openai, ...)
	Provider string `json:"provider"`

	Description   string         `json:"description,omitempty"`
	ContextLength int            `json:"context_length,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Parameters    string         `json:"parameters,omitempty"`   // e.g. "7B"
	Quantization  string         `json:"quantization,omitempty"` // e.g. "Q4_K_M"
	Size          string         `json:"size,omitempty"`         // e.g. "4.1GB"
	Capabilities  []string       `json:"capabilities,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CapabilitiesString returns a comma-separated list of model capabilities.
func (m ModelInfo) CapabilitiesString() string {
	if len(m.Capabilities) == 0 {
		return "chat"
	}
	return strings.Join(m.Capabilities, ", ")
}

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	n := m.ContextLength
	switch {
	case n <= 0:
		return "unknown"
	case n >= 1000000:
		return fmt.Sprintf("%.1fM tokens", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%dK tokens", n/1000)
	default:
		return fmt.Sprintf("%d tokens", n)
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog groups the server's models by provider.
type Catalog map[string][]ModelInfo

// Providers returns the provider names in sorted order.
func (c Catalog) Providers() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total returns the number of models across all providers.
func (c Catalog) Total() int {
	n := 0
	for _, models := range c {
		n += len(models)
	}
	return n
}

// Lookup finds a model by exact ID, then by case-insensitive name prefix.
// An empty provider searches every provider.
func (c Catalog) Lookup(provider, nameOrID string) (ModelInfo, bool) {
	candidates := c.candidates(provider)

	for _, info := range candidates {
		if info.ID == nameOrID {
			return info, true
		}
	}

	lower := strings.ToLower(nameOrID)
	for _, info := range candidates {
		if strings.HasPrefix(strings.ToLower(info.Name), lower) ||
			strings.HasPrefix(strings.ToLower(info.ID), lower) {
			return info, true
		}
	}

	return ModelInfo{}, false
}

func (c Catalog) candidates(provider string) []ModelInfo {
	if provider != "" {
		for name, models := range c {
			if strings.EqualFold(name, provider) {
				return models
			}
		}
		return nil
	}
	var all []ModelInfo
	for _, name := range c.Providers() {
		all = append(all, c[name]...)
	}
	return all
}
