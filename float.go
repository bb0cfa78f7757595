// Copyright 2025 Edgeo SCADA
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

package regsim

import "math"

// Float32ToWords packs an IEEE-754 binary32 value into two big-endian
// 16-bit register words, most-significant word first.
func Float32ToWords(value float32) (hi, lo uint16) {
	bits := math.Float32bits(value)
	return uint16(bits >> 16), uint16(bits)
}

// WordsToFloat32 is the exact inverse of Float32ToWords: it reassembles the
// two register words and reinterprets them as a binary32 value. The
// round-trip is bit-exact for every finite value; NaN round-trips by bit
// pattern, not by equality.
func WordsToFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}
