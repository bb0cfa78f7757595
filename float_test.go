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

import (
	"math"
	"testing"
)

func TestFloat32ToWordsKnownValues(t *testing.T) {
	tests := []struct {
		value float32
		hi    uint16
		lo    uint16
	}{
		{0.0, 0x0000, 0x0000},
		{1.0, 0x3F80, 0x0000},
		{-1.0, 0xBF80, 0x0000},
		{2.0, 0x4000, 0x0000},
		{0.5, 0x3F00, 0x0000},
		{21.5, 0x41AC, 0x0000},
		{float32(math.Inf(1)), 0x7F80, 0x0000},
		{float32(math.Inf(-1)), 0xFF80, 0x0000},
	}

	for _, tt := range tests {
		hi, lo := Float32ToWords(tt.value)
		if hi != tt.hi || lo != tt.lo {
			t.Errorf("Float32ToWords(%v): expected %04X %04X, got %04X %04X",
				tt.value, tt.hi, tt.lo, hi, lo)
		}
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	values := []float32{
		0,
		1,
		-1,
		3.14159,
		-273.15,
		math.MaxFloat32,
		math.SmallestNonzeroFloat32,
		1e-40, // subnormal
		float32(math.Inf(1)),
	}

	for _, v := range values {
		hi, lo := Float32ToWords(v)
		got := WordsToFloat32(hi, lo)
		if math.Float32bits(got) != math.Float32bits(v) {
			t.Errorf("Round trip of %v: got %v (bits %08X vs %08X)",
				v, got, math.Float32bits(v), math.Float32bits(got))
		}
	}
}

func TestFloat32RoundTripNegativeZero(t *testing.T) {
	negZero := math.Float32frombits(0x80000000)

	hi, lo := Float32ToWords(negZero)
	if hi != 0x8000 || lo != 0x0000 {
		t.Errorf("Float32ToWords(-0): expected 8000 0000, got %04X %04X", hi, lo)
	}
	got := WordsToFloat32(hi, lo)
	if math.Float32bits(got) != 0x80000000 {
		t.Errorf("Round trip of -0 lost the sign bit: bits %08X", math.Float32bits(got))
	}
}

func TestFloat32RoundTripNaN(t *testing.T) {
	// NaN payloads must survive the codec bit-exactly
	bits := uint32(0x7FC00001)
	v := math.Float32frombits(bits)

	hi, lo := Float32ToWords(v)
	got := WordsToFloat32(hi, lo)
	if math.Float32bits(got) != bits {
		t.Errorf("NaN round trip: expected bits %08X, got %08X", bits, math.Float32bits(got))
	}
}

func TestWordsToFloat32WordOrder(t *testing.T) {
	// High word first: 0x41AC 0x0000 is 21.5, swapped it is not
	if got := WordsToFloat32(0x41AC, 0x0000); got != 21.5 {
		t.Errorf("WordsToFloat32(41AC, 0000): expected 21.5, got %v", got)
	}
	if got := WordsToFloat32(0x0000, 0x41AC); got == 21.5 {
		t.Error("Swapped word order must not decode to 21.5")
	}
}
