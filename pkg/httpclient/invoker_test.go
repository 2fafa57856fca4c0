// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/stateful"
)

func testInvoker(t *testing.T, handler http.HandlerFunc) *Invoker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	inv, err := NewInvoker(cfg)
	require.NoError(t, err)
	return inv
}

func TestInvoke_PathAndQuerySubstitution(t *testing.T) {
	var gotPath, gotQuery string
	inv := testInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("verbose")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u-1"}`))
	})

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "get_user",
		Method:      "GET",
		Path:        "/users/{userId}",
		PathParams:  map[string]interface{}{"userId": "u-1"},
		QueryParams: map[string]interface{}{"verbose": true},
	})
	require.NoError(t, err)

	assert.Equal(t, "/users/u-1", gotPath)
	assert.Equal(t, "true", gotQuery)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"id": "u-1"}, resp.Body)
}

func TestInvoke_JSONBodyRoundTrip(t *testing.T) {
	var received map[string]interface{}
	inv := testInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"u-9"}`))
	})

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "create_user",
		Method:      "POST",
		Path:        "/users",
		Body:        map[string]interface{}{"name": "alice"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"name": "alice"}, received)
	assert.Equal(t, 201, resp.StatusCode)
}

func TestInvoke_NonJSONBodyKeptVerbatim(t *testing.T) {
	inv := testInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("plain text"))
	})

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "health",
		Method:      "GET",
		Path:        "/health",
	})
	require.NoError(t, err)
	assert.Equal(t, "plain text", resp.Body)
}

func TestInvoke_HeadersApplied(t *testing.T) {
	var gotAuth, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Step")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Headers = map[string]string{"Authorization": "Bearer t"}
	inv, err := NewInvoker(cfg)
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "ping",
		Method:      "GET",
		Path:        "/ping",
		Headers:     map[string]string{"X-Step": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "1", gotCustom)
}

func TestInvoke_UnresolvedPathParameter(t *testing.T) {
	inv := testInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "get_user",
		Method:      "GET",
		Path:        "/users/{userId}",
	})
	require.Error(t, err)

	var invErr *errors.InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "get_user", invErr.OperationID)
}

func TestInvoke_Timeout(t *testing.T) {
	inv := testInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, &stateful.Request{
		OperationID: "slow",
		Method:      "GET",
		Path:        "/slow",
	})
	require.Error(t, err)

	var timeoutErr *errors.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "slow", timeoutErr.Operation)
}

func TestInvoke_ServerErrorIsNotAnInvokeError(t *testing.T) {
	inv := testInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "flaky",
		Method:      "GET",
		Path:        "/flaky",
	})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "missing base URL")

	cfg.BaseURL = "not-a-url"
	require.Error(t, cfg.Validate())

	cfg.BaseURL = "https://api.example.com"
	require.NoError(t, cfg.Validate())

	cfg.RetryAttempts = 2
	cfg.RetryBackoff = 0
	require.Error(t, cfg.Validate())

	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	require.Error(t, cfg.Validate())
}

func TestRetry_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	inv, err := NewInvoker(cfg)
	require.NoError(t, err)

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "ping",
		Method:      "GET",
		Path:        "/ping",
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PostIsNotRetriedByDefault(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	inv, err := NewInvoker(cfg)
	require.NoError(t, err)

	resp, err := inv.Invoke(context.Background(), &stateful.Request{
		OperationID: "create",
		Method:      "POST",
		Path:        "/things",
	})
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://h/x?api_key=s3cret", "https://h/x?api_key=%5BREDACTED%5D"},
		{"https://h/x?page=2", "https://h/x?page=2"},
		{"https://h/x?Token=abc", "https://h/x?Token=%5BREDACTED%5D"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, sanitizeURL(u))
	}
}
