/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by mutations and saves while no document is loaded.
	ErrNotLoaded = errors.New("opus: no document loaded")
	// ErrUnsupported marks parameterized action templates, which are recognized but not handled.
	ErrUnsupported = errors.New("opus: parameterized action templates are not supported, edit manually")
	// ErrStartNode is returned when the start node is missing or would be removed.
	ErrStartNode = errors.New("opus: start node must name an existing node")
)

// ParseError reports a malformed document. Path locates the offending value, e.g. "nodes.intro.actions[1]".
type ParseError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	var s string
	if e.Path != "" {
		s = fmt.Sprintf("parse %s: %s", e.Path, e.Msg)
	} else {
		s = "parse: " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// LookupError reports a name reference that does not resolve in its owning table.
type LookupError struct {
	Category Category
	Name     string
	// Where is the referencing slot, empty for direct update/delete calls.
	Where string
}

func (e *LookupError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("lookup %s %q referenced from %s: not found", e.Category, e.Name, e.Where)
	}
	return fmt.Sprintf("lookup %s %q: not found", e.Category, e.Name)
}

// IOError wraps a failed read or write of the document text.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }
