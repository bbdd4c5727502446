/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements persistence for opus documents.
// It reads and writes the YAML script with transactional writes and timestamped backups in <dir>/backups.
// It also manages a per-document embedded SQLite index at <dir>/.opus/<file>.sqlite used for search and where-used queries.
// The index is derived from the document and can be deleted and rebuilt at any time.
package storage
