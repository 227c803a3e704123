// Copyright 2024 The Mantalon Authors
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

// Package manifest implements the compiled, process-wide, read-mostly
// Manifest Model (component C5): a table of URL-pattern-matched edit rules,
// atomically swapped on refresh.
package manifest

import "encoding/json"

// Source is the wire schema fetched as JSON (spec.md §6).
type Source struct {
	Domains         []string      `json:"domains"`
	LockBrowsing    *bool         `json:"lock_browsing,omitempty"`
	HTTPSOnly       *bool         `json:"https_only,omitempty"`
	RewriteLocation *bool         `json:"rewrite_location,omitempty"`
	JSRedirect      *bool         `json:"js_redirect,omitempty"`
	ContentEdits    []ContentEdit `json:"content_edits"`
}

// ContentEdit is one rule before compilation.
type ContentEdit struct {
	Matches         []string        `json:"matches"`
	LockBrowsing    *bool           `json:"lock_browsing,omitempty"`
	HTTPSOnly       *bool           `json:"https_only,omitempty"`
	RewriteLocation *bool           `json:"rewrite_location,omitempty"`
	JSRedirect      *bool           `json:"js_redirect,omitempty"`
	JS              FileInsertion   `json:"js,omitempty"`
	CSS             FileInsertion   `json:"css,omitempty"`
	OverrideURL     string          `json:"override_url,omitempty"`
	Substitute      []Substitution  `json:"substitute,omitempty"`
	AppendHeaders   map[string]string `json:"append_headers,omitempty"`
	InsertHeaders   map[string]string `json:"insert_headers,omitempty"`
	RemoveHeaders   []string          `json:"remove_headers,omitempty"`
	RenameHeaders   map[string]string `json:"rename_headers,omitempty"`

	AppendRequestHeaders map[string]string `json:"append_request_headers,omitempty"`
	InsertRequestHeaders map[string]string `json:"insert_request_headers,omitempty"`
	RemoveRequestHeaders []string          `json:"remove_request_headers,omitempty"`
	RenameRequestHeaders map[string]string `json:"rename_request_headers,omitempty"`
}

// Substitution describes one ordered, literal-pattern body replacement.
type Substitution struct {
	Pattern         string `json:"pattern"`
	Replacement     *string `json:"replacement,omitempty"`
	ReplacementFile *string `json:"replacement_file,omitempty"`
	MaxReplacements *int    `json:"max_replacements,omitempty"`
}

// FileInsertion accepts either a bare string or a list of strings in JSON,
// matching the original schema's untagged File/Files enum.
type FileInsertion []string

func (f *FileInsertion) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = FileInsertion{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = FileInsertion(many)
	return nil
}

func (f FileInsertion) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(f))
}
