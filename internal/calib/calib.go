// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calib applies per-sensor calibration: temperature compensation,
// bias/scale/misalignment correction via a closed-form inverse, and gyro
// g-sensitivity correction.
package calib

import "math"

// Digital conversion factors (LSB to physical units).
const (
	// KAccel converts raw accelerometer LSBs to g for a +/-2g full range.
	KAccel = 0.000061035
	// KGyro converts raw gyro LSBs to dps for a +/-250 dps full range.
	KGyro = 0.007633587
)

// singularityEpsilon is the minimum allowed magnitude of the ISM inverse's
// denominator; below this the sensor's calibration is unusable and the
// sensor should be excluded rather than propagate NaN/Inf.
const singularityEpsilon = 1e-9

// Block holds one sensor's calibration coefficients and derived inverse
// matrices. Index layout for the 6-vectors is (Ax, Ay, Az, Gx, Gy, Gz).
type Block struct {
	B [6]float64 // bias
	S [6]float64 // scale factor
	M [6]float64 // misalignment
	T [6]float64 // temperature slope
	G [9]float64 // gyro g-sensitivity, row-major 3x3

	AISM [9]float64 // accelerometer inverse scale/misalignment, row-major 3x3
	GISM [9]float64 // gyro inverse scale/misalignment, row-major 3x3
}

// ismInverse computes the closed-form inverse of I + diag(Sx,Sy,Sz) +
// skew(Mx,My,Mz) where Mx,My,Mz sit at the three off-diagonal positions, as
// used by both the accelerometer and gyro calibration blocks. It returns
// false if the denominator is too close to zero to trust.
func ismInverse(s [3]float64, m [3]float64) (out [9]float64, ok bool) {
	sx, sy, sz := s[0], s[1], s[2]
	mx, my, mz := m[0], m[1], m[2]

	den := sx + sy + sz + sx*sy + sx*sz + sy*sz +
		mx*mx*sy + my*my*sx + mz*mz*sz +
		mx*mx + my*my + mz*mz +
		sx*sy*sz + 1

	if math.Abs(den) < singularityEpsilon {
		return out, false
	}

	out[0] = (mz*mz + sy + sz + sy*sz + 1) / den
	out[1] = -(mx + mx*sz + my*mz) / den
	out[2] = -(my + my*sy - mx*mz) / den
	out[3] = (mx + mx*sz - my*mz) / den
	out[4] = (my*my + sx + sz + sx*sz + 1) / den
	out[5] = -(mz + mz*sx + mx*my) / den
	out[6] = (my + my*sy + mx*mz) / den
	out[7] = (mz + mz*sx - mx*my) / den
	out[8] = (mx*mx + sx + sy + sx*sy + 1) / den

	return out, true
}

// Init precomputes AISM and GISM from S and M. It returns false if either
// block's denominator is too close to a singularity, in which case the
// caller must treat the sensor as absent.
func (b *Block) Init() bool {
	aISM, aOK := ismInverse([3]float64{b.S[0], b.S[1], b.S[2]}, [3]float64{b.M[0], b.M[1], b.M[2]})
	gISM, gOK := ismInverse([3]float64{b.S[3], b.S[4], b.S[5]}, [3]float64{b.M[3], b.M[4], b.M[5]})
	if !aOK || !gOK {
		return false
	}
	b.AISM = aISM
	b.GISM = gISM
	return true
}

// Indices into the raw seven-channel frame, in wire order.
const (
	AX = iota
	AY
	AZ
	Temp
	GX
	GY
	GZ
)

// Calibrated holds the corrected accelerometer and gyro triads for one
// sensor, one sample.
type Calibrated struct {
	Accel [3]float64 // m/s^2-free units: g
	Gyro  [3]float64 // dps
	TempC float64
}

// Apply runs one sensor's raw seven-channel sample through temperature
// compensation, bias/scale/misalignment correction, and gyro
// g-sensitivity correction.
func (b *Block) Apply(raw [7]int16) Calibrated {
	tempC := float64(raw[Temp])/326.8 + 25
	dT := tempC - 25

	var aPre [3]float64
	for axis := 0; axis < 3; axis++ {
		aPre[axis] = KAccel*float64(raw[axis]) - b.B[axis] - b.T[axis]*dT
	}

	var aCal [3]float64
	aCal[0] = b.AISM[0]*aPre[0] + b.AISM[1]*aPre[1] + b.AISM[2]*aPre[2]
	aCal[1] = b.AISM[3]*aPre[0] + b.AISM[4]*aPre[1] + b.AISM[5]*aPre[2]
	aCal[2] = b.AISM[6]*aPre[0] + b.AISM[7]*aPre[1] + b.AISM[8]*aPre[2]

	var gPre [3]float64
	for axis := 0; axis < 3; axis++ {
		g := KGyro*float64(raw[GX+axis]) - b.B[3+axis] - b.T[3+axis]*dT
		g -= b.G[3*axis+0]*aCal[0] + b.G[3*axis+1]*aCal[1] + b.G[3*axis+2]*aCal[2]
		gPre[axis] = g
	}

	var gCal [3]float64
	gCal[0] = b.GISM[0]*gPre[0] + b.GISM[1]*gPre[1] + b.GISM[2]*gPre[2]
	gCal[1] = b.GISM[3]*gPre[0] + b.GISM[4]*gPre[1] + b.GISM[5]*gPre[2]
	gCal[2] = b.GISM[6]*gPre[0] + b.GISM[7]*gPre[1] + b.GISM[8]*gPre[2]

	return Calibrated{Accel: aCal, Gyro: gCal, TempC: tempC}
}
