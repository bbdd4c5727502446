/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opus

import (
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"math/rand"
)

// suffixBytes gives 2^48 candidate suffixes per prefix.
const suffixBytes = 6

// NameAllocator generates synthetic entity names of the form <prefix>_<12 hex digits>.
// It is not safe for concurrent use.
type NameAllocator struct {
	src io.Reader
}

// NewNameAllocator returns an allocator reading randomness from src, or from crypto/rand when src is nil.
func NewNameAllocator(src io.Reader) *NameAllocator {
	if src == nil {
		src = crand.Reader
	}
	return &NameAllocator{src: src}
}

// NewSeededNameAllocator returns an allocator that yields the same sequence for the same seed.
func NewSeededNameAllocator(seed int64) *NameAllocator {
	return &NameAllocator{src: rand.New(rand.NewSource(seed))}
}

// Allocate returns prefix + "_" + a random hex suffix for which taken reports false.
func (a *NameAllocator) Allocate(prefix string, taken func(name string) bool) string {
	buf := make([]byte, suffixBytes)
	for {
		if _, err := io.ReadFull(a.src, buf); err != nil {
			// exhausted or broken source
			_, _ = crand.Read(buf)
		}
		name := prefix + "_" + hex.EncodeToString(buf)
		if taken == nil || !taken(name) {
			return name
		}
	}
}
