// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileEntry is one sensor's coefficient set as stored on disk.
type fileEntry struct {
	Index int        `json:"index"`
	B     [6]float64 `json:"bias"`
	S     [6]float64 `json:"scale"`
	M     [6]float64 `json:"misalignment"`
	T     [6]float64 `json:"temp_slope"`
	G     [9]float64 `json:"g_sensitivity"`
}

type fileFormat struct {
	Sensors []fileEntry `json:"sensors"`
}

// LoadFile reads per-sensor calibration coefficients from the JSON file at
// path and returns one Block per sensor index in [0, n). Sensors without a
// file entry get zero coefficients, which reduce to an identity correction
// after Init. An empty path returns n zero blocks, so a system without a
// coefficients file runs uncalibrated instead of not at all.
//
// Callers must still run Init on each returned block before use.
func LoadFile(path string, n int) ([]Block, error) {
	blocks := make([]Block, n)
	if path == "" {
		return blocks, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return blocks, fmt.Errorf("calib: read %s: %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return blocks, fmt.Errorf("calib: parse %s: %w", path, err)
	}

	for _, e := range f.Sensors {
		if e.Index < 0 || e.Index >= n {
			return blocks, fmt.Errorf("calib: entry index %d out of range [0,%d)", e.Index, n)
		}
		blocks[e.Index] = Block{B: e.B, S: e.S, M: e.M, T: e.T, G: e.G}
	}

	return blocks, nil
}
