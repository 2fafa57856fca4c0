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
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tombee/roundtrip/pkg/errors"
	"github.com/tombee/roundtrip/pkg/stateful"
)

// Invoker executes operation requests against a base URL. It
// implements stateful.Invoker: path templates are expanded with the
// request's path parameters, bodies are JSON-encoded, and JSON
// responses are decoded for field extraction.
type Invoker struct {
	client  *http.Client
	baseURL string
	headers map[string]string
}

// NewInvoker creates an invoker from the configuration.
func NewInvoker(cfg Config) (*Invoker, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Invoker{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
	}, nil
}

// Invoke implements stateful.Invoker.
func (inv *Invoker) Invoke(ctx context.Context, req *stateful.Request) (*stateful.Response, error) {
	target, err := inv.buildURL(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &errors.InvocationError{
				OperationID: req.OperationID,
				Message:     "encoding request body",
				Cause:       err,
			}
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &errors.InvocationError{
			OperationID: req.OperationID,
			Message:     "building request",
			Cause:       err,
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range inv.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := inv.client.Do(httpReq)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, &errors.TimeoutError{
				Operation: req.OperationID,
				Cause:     err,
			}
		}
		return nil, &errors.InvocationError{
			OperationID: req.OperationID,
			Message:     "request failed",
			Cause:       err,
		}
	}
	defer resp.Body.Close()

	out := &stateful.Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.InvocationError{
			OperationID: req.OperationID,
			StatusCode:  resp.StatusCode,
			Message:     "reading response body",
			Cause:       err,
		}
	}
	if len(raw) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out.Body = decoded
		} else {
			// Non-JSON bodies are kept verbatim; extraction simply
			// finds no fields in them.
			out.Body = string(raw)
		}
	}
	return out, nil
}

// buildURL expands the path template with path parameters and appends
// query parameters. An unresolved placeholder is an error: sending a
// literal "{userId}" would test URL escaping, not the API.
func (inv *Invoker) buildURL(req *stateful.Request) (string, error) {
	path := req.Path
	for name, value := range req.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(paramString(value)))
	}
	if i := strings.IndexByte(path, '{'); i >= 0 {
		return "", &errors.InvocationError{
			OperationID: req.OperationID,
			Message:     fmt.Sprintf("path %s has unresolved parameters", path),
		}
	}

	target := inv.baseURL + path
	if len(req.QueryParams) > 0 {
		query := url.Values{}
		for name, value := range req.QueryParams {
			query.Set(name, paramString(value))
		}
		target += "?" + query.Encode()
	}
	return target, nil
}

// paramString renders a parameter value for URL use. Strings pass
// through; everything else takes its JSON form.
func paramString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key := range header {
		out[key] = header.Get(key)
	}
	return out
}
