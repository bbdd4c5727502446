/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package opus implements the document model of an opus: a graph of narrative nodes whose actions
// reference playback assets. It parses the YAML script into three entity tables, keeps inline
// (embedded at the point of use) and named (top-level) entities apart, and writes them back so both
// forms survive a load/save cycle.
//
// An Opus is owned by a single caller and is not safe for concurrent mutation.
package opus
