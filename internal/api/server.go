// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// MODELS
// =============================================================================

// ListModels returns the server's model registry grouped by provider.
func (c *Client) ListModels(ctx context.Context) (model.Catalog, error) {
	var out struct {
		Models model.Catalog `json:"models"`
		Total  int           `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = model.Catalog{}
	}
	return out.Models, nil
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImageRequest is the body of POST /api/images/generate.
type GenerateImageRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	TextModel      string `json:"text_model,omitempty"`
	TextProvider   string `json:"text_provider,omitempty"`
	Steps          int    `json:"num_inference_steps,omitempty"`
}

// GenerateImageResponse acknowledges a queued generation. Progress arrives
// over the socket as image_progress events.
type GenerateImageResponse struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
}

// GenerateImage queues an image generation. The server creates a
// conversation when none is given and reports its id.
func (c *Client) GenerateImage(ctx context.Context, req GenerateImageRequest) (*GenerateImageResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &Error{Type: ErrTypeBadRequest, Message: "prompt is required"}
	}
	var out GenerateImageResponse
	if err := c.do(ctx, http.MethodPost, "/api/images/generate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is the server's health report.
type Health struct {
	Status  string         `json:"status"`
	Service string         `json:"service,omitempty"`
	Checks  map[string]any `json:"checks,omitempty"`
}

// Live checks that the server process is up.
func (c *Client) Live(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health/live", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ready checks that the server can handle requests.
func (c *Client) Ready(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health/ready", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
