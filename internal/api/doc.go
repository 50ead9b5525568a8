// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the chat server's REST API.
//
// Every call sends the JWT as a bearer token and maps failures to *Error
// with an ErrorType, so callers can branch on IsNotFound, IsUnauthorized
// or IsTimeout without parsing messages. Nothing is retried.
//
// Example:
//
//	client := api.NewClient(api.Config{BaseURL: url, Token: token})
//	conv, err := client.CreateConversation(ctx, api.CreateConversationRequest{Title: "Ideas"})
//	if api.IsUnauthorized(err) {
//	    // token expired
//	}
package api
