// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Token: "jwt"})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.False(t, c.HasToken())
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestCreateConversation(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/conversations", r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body CreateConversationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "New Conversation", body.Title)
		assert.Equal(t, "llama3.2", body.Model)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"c1","title":"New Conversation","model":"llama3.2","provider":"ollama",
			"message_count":0,"created_at":"2025-03-01T10:00:00.000001","updated_at":"2025-03-01T10:00:00"}`))
	})

	conv, err := c.CreateConversation(context.Background(), CreateConversationRequest{Model: "llama3.2", Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, "ollama", conv.Provider)
	assert.Equal(t, 2025, conv.CreatedAt.Year())
}

func TestCreateConversation_MissingID(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"title":"x"}`))
	})
	_, err := c.CreateConversation(context.Background(), CreateConversationRequest{})
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrTypeInvalidResponse, apiErr.Type)
}

func TestListConversationsAndMessages(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/conversations":
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Empty(t, r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"conversations":[{"id":"a","title":"A"},{"id":"b","title":""}]}`))
		case "/api/conversations/a/messages":
			_, _ = w.Write([]byte(`{"messages":[
				{"id":"m1","conversation_id":"a","role":"user","content":"hi","created_at":"2025-03-01T10:00:00"},
				{"id":"m2","conversation_id":"a","role":"assistant","content":"hello","created_at":"2025-03-01T10:00:01"}]}`))
		default:
			http.NotFound(w, r)
		}
	})

	convs, err := c.ListConversations(context.Background(), Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "New Conversation", convs[1].DisplayTitle())

	msgs, err := c.GetMessages(context.Background(), "a", Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.True(t, msgs[1].IsConfirmed())
}

func TestRenameAndDelete(t *testing.T) {
	var calls []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPatch {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]any{"title": "Renamed"}, body)
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	require.NoError(t, c.RenameConversation(context.Background(), "c 1", "Renamed"))
	require.NoError(t, c.DeleteConversation(context.Background(), "c1"))
	assert.Equal(t, []string{"PATCH /api/conversations/c 1", "DELETE /api/conversations/c1"}, calls)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantMsg  string
		check    func(error) bool
	}{
		{"not found", 404, `{"error":"Conversation not found"}`, ErrTypeNotFound, "Conversation not found", IsNotFound},
		{"expired jwt", 401, `{"msg":"Token has expired"}`, ErrTypeUnauthorized, "Token has expired", IsUnauthorized},
		{"malformed jwt", 422, `{"msg":"Not enough segments"}`, ErrTypeUnauthorized, "Not enough segments", IsUnauthorized},
		{"server", 500, `oops`, ErrTypeServer, "request failed: 500 Internal Server Error", nil},
		{"bad request", 400, `{"error":"Prompt is required"}`, ErrTypeBadRequest, "Prompt is required", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.GetConversation(context.Background(), "x")

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr), "err = %v", err)
			assert.Equal(t, tc.wantType, apiErr.Type)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.wantMsg, apiErr.Message)
			if tc.check != nil {
				assert.True(t, tc.check(err))
			}
		})
	}
}

func TestErrorIs_Sentinels(t *testing.T) {
	err := error(&Error{Type: ErrTypeNotFound, StatusCode: 404, Message: "Conversation not found"})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestTimeoutAndUnreachable(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(slow.Close)

	c := NewClient(Config{BaseURL: slow.URL, Timeout: 20 * time.Millisecond})
	_, err := c.ListConversations(context.Background(), Page{})
	assert.True(t, IsTimeout(err), "err = %v", err)

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	_, err = NewClient(Config{BaseURL: url}).Live(context.Background())
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrTypeConnection, apiErr.Type)
}

func TestListModels(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":{"ollama":[{"id":"llama3.2","name":"Llama 3.2","provider":"ollama","context_length":128000}]},"total":1}`))
	})
	cat, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Total())
	info, ok := cat.Lookup("ollama", "llama")
	require.True(t, ok)
	assert.Equal(t, "128K tokens", info.ContextString())
}

func TestGenerateImage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body GenerateImageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a red fox", body.Prompt)
		_, _ = w.Write([]byte(`{"status":"processing","conversation_id":"new-conv"}`))
	})

	resp, err := c.GenerateImage(context.Background(), GenerateImageRequest{Prompt: "a red fox"})
	require.NoError(t, err)
	assert.Equal(t, "new-conv", resp.ConversationID)

	_, err = c.GenerateImage(context.Background(), GenerateImageRequest{})
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrTypeBadRequest, apiErr.Type)
}

func TestSearchConversations(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/search", r.URL.Path)
		assert.Equal(t, "fox", r.URL.Query().Get("q"))
		assert.Equal(t, "messages", r.URL.Query().Get("scope"))
		_, _ = w.Write([]byte(`{"results":[{"id":"m1","conversation_id":"c1","content":"the fox","role":"user","created_at":null,"updated_at":null}]}`))
	})

	res, err := c.SearchConversations(context.Background(), "fox", ScopeMessages, Page{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c1", res[0].ConversationID)

	res, err = c.SearchConversations(context.Background(), "", ScopeMessages, Page{})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"alive","service":"marie-backend"}`))
	})
	h, err := c.Live(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alive", h.Status)
	assert.Equal(t, "marie-backend", h.Service)
}
