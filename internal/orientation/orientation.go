// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation rewrites a sensor's raw accelerometer/gyro axes into
// board axes. Sensors are bolted to the array in four physical rotations;
// each rotation is a sign/swap rewrite of X and Y (Z is never touched).
package orientation

// Orientation is a tagged variant of the four board-mounting rotations.
// Board X/Y map to sensor axes differently depending on which arm of the
// array a sensor sits on.
type Orientation int

const (
	// IdentityNeg: board X -> sensor -X, board Y -> sensor -Y.
	IdentityNeg Orientation = iota
	// SwapNeg: board X -> sensor -Y, board Y -> sensor X.
	SwapNeg
	// Identity: board X -> sensor X, board Y -> sensor Y.
	Identity
	// SwapPos: board X -> sensor Y, board Y -> sensor -X.
	SwapPos
)

// ForIndex returns the mounting orientation for sensor index i, grouped in
// blocks of 8 around the array.
func ForIndex(i int) Orientation {
	switch {
	case i < 8:
		return IdentityNeg
	case i < 16:
		return SwapNeg
	case i < 24:
		return Identity
	default:
		return SwapPos
	}
}

// Rewrite applies the orientation to a raw (ax, ay, gx, gy) pair, returning
// the board-frame values. az, gz, and temp are never rewritten by any
// orientation and are not passed here.
func (o Orientation) Rewrite(ax, ay, gx, gy int16) (bx, by, bgx, bgy int16) {
	switch o {
	case IdentityNeg:
		return -ax, -ay, -gx, -gy
	case SwapNeg:
		return -ay, ax, -gy, gx
	case Identity:
		return ax, ay, gx, gy
	case SwapPos:
		return ay, -ax, gy, -gx
	default:
		return ax, ay, gx, gy
	}
}

// String returns a short debug label for the orientation.
func (o Orientation) String() string {
	switch o {
	case IdentityNeg:
		return "IdentityNeg"
	case SwapNeg:
		return "SwapNeg"
	case Identity:
		return "Identity"
	case SwapPos:
		return "SwapPos"
	default:
		return "Unknown"
	}
}
