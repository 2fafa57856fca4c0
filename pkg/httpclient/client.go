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

// Package httpclient invokes API operations over HTTP with consistent
// timeout, retry, throttling and logging behavior.
//
// The client composes transport layers:
//   - Request logging with sanitized URLs (sensitive params redacted)
//   - User-Agent header injection
//   - Optional token-bucket throttling
//   - Optional retries with exponential backoff and jitter
//   - TLS 1.2+ and connection pooling
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.BaseURL = "https://api.example.com"
//	invoker, err := httpclient.NewInvoker(cfg)
//	if err != nil {
//	    return err
//	}
//	resp, err := invoker.Invoke(ctx, req)
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New creates an *http.Client with the configured transport stack.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Innermost custom layer: logging and User-Agent.
	var transport http.RoundTripper = newLoggingTransport(baseTransport, cfg.UserAgent)

	if cfg.RequestsPerSecond > 0 {
		transport = newRateLimitTransport(transport, cfg.RequestsPerSecond)
	}
	if cfg.RetryAttempts > 0 {
		transport = newRetryTransport(transport, cfg)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}
