/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/opus.schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	documentSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		documentSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return documentSchema, schemaErr
}

// SchemaJSON returns the JSON schema documents are checked against.
func SchemaJSON() []byte { return append([]byte(nil), schemaJSON...) }

// ValidateDocument parses data as YAML and checks its structure against the document schema.
// It does not resolve references.
func ValidateDocument(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return &ParseError{Msg: "invalid yaml", Err: err}
	}
	plain, err := toPlain(&root)
	if err != nil {
		return &ParseError{Msg: "unreadable document", Err: err}
	}
	return validateStructure(plain)
}

func validateStructure(doc any) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile document schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ParseError{Msg: "document is not representable as JSON", Err: err}
	}
	if res.Valid() {
		return nil
	}
	errs := res.Errors()
	first := errs[0]
	msg := first.Description()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return parseErrorf(schemaPath(first.Field()), "%s", msg)
}

// schemaPath maps gojsonschema field names onto the dotted paths used by ParseError.
func schemaPath(field string) string {
	if field == "(root)" {
		return ""
	}
	return strings.TrimPrefix(field, "(root).")
}
