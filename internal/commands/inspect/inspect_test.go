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

package inspect

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersDoc = `
openapi: "3.0.3"
info:
  title: Users
  version: "1.0"
paths:
  /users:
    post:
      operationId: create_user
      responses:
        "201":
          description: Created
          links:
            GetUserById:
              operationId: get_user
              parameters:
                userId: "$response.body#/id"
  /users/{userId}:
    get:
      operationId: get_user
      parameters:
        - name: userId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
`

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(usersDoc), 0o644))
	return path
}

func TestInspect_JSON(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{writeDoc(t), "--json"})

	require.NoError(t, cmd.Execute())

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))

	require.Len(t, rep.Operations, 2)
	assert.Equal(t, "create_user", rep.Operations[0].OperationID)
	assert.Equal(t, map[string]string{"id": "id_bundle"}, rep.Operations[0].Produces)
	assert.Equal(t, map[string]string{"userId": "id_bundle"}, rep.Operations[1].Consumes)

	require.Len(t, rep.Bundles, 1)
	assert.Equal(t, "id_bundle", rep.Bundles[0].Name)

	require.Len(t, rep.Links, 1)
	assert.Equal(t, "create_user", rep.Links[0].From)
	assert.Equal(t, "get_user", rep.Links[0].To)
}

func TestInspect_Text(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{writeDoc(t)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "create_user")
	assert.Contains(t, out.String(), "id_bundle")
	assert.Contains(t, out.String(), "create_user -> get_user")
}

func TestInspect_MissingFile(t *testing.T) {
	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/openapi.yaml"})

	require.Error(t, cmd.Execute())
}
