// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logsink

import (
	"encoding/binary"
	"math"

	"github.com/relabs-tech/imucluster/internal/acqring"
	"github.com/relabs-tech/imucluster/internal/cobs"
	"github.com/relabs-tech/imucluster/internal/integrator"
)

// Raw frames are split into two COBS-encoded chunks: the first carries the
// timestamp plus the first RawChunk1Sensors sensors, the second the rest.
// Each chunk stays under the 254-byte run limit a single COBS code byte
// can cover.
const (
	RawChunk1Sensors     = 17
	RawChunk2Sensors     = acqring.MaxSensors - RawChunk1Sensors
	RawChunk1PayloadSize = 4 + RawChunk1Sensors*acqring.ChannelsPerSensor*2
	RawChunk2PayloadSize = RawChunk2Sensors * acqring.ChannelsPerSensor * 2

	// CalPayloadSize covers dTheta, dV, accumulated velocity, quaternion,
	// and average temperature: 14 float32 fields.
	CalPayloadSize = 14 * 4
)

func putI16(dst []byte, v int16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	return append(dst, b[:]...)
}

func putF32(dst []byte, v float64) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
	return append(dst, b[:]...)
}

// EncodeRawFrame produces the two COBS frames (each including the trailing
// zero delimiter) for one acquisition frame.
func EncodeRawFrame(f acqring.Frame) (chunk1, chunk2 []byte) {
	p1 := make([]byte, 0, RawChunk1PayloadSize)
	var ts [4]byte
	binary.LittleEndian.PutUint32(ts[:], f.TimeStamp)
	p1 = append(p1, ts[:]...)
	for s := 0; s < RawChunk1Sensors; s++ {
		for c := 0; c < acqring.ChannelsPerSensor; c++ {
			p1 = putI16(p1, f.Sensor[s][c])
		}
	}

	p2 := make([]byte, 0, RawChunk2PayloadSize)
	for s := RawChunk1Sensors; s < RawChunk1Sensors+RawChunk2Sensors; s++ {
		for c := 0; c < acqring.ChannelsPerSensor; c++ {
			p2 = putI16(p2, f.Sensor[s][c])
		}
	}

	chunk1 = append(cobs.Encode(p1), 0)
	chunk2 = append(cobs.Encode(p2), 0)
	return chunk1, chunk2
}

// EncodeCalibratedRecord produces the single COBS frame (including the
// trailing zero delimiter) for one processed record, carrying dTheta, dV,
// accumulated velocity, the attitude quaternion (x, y, z, w), and average
// temperature.
func EncodeCalibratedRecord(r integrator.Record) []byte {
	p := make([]byte, 0, CalPayloadSize)
	for _, v := range r.DeltaTheta {
		p = putF32(p, v)
	}
	for _, v := range r.DeltaV {
		p = putF32(p, v)
	}
	for _, v := range r.AccumulatedVelocity {
		p = putF32(p, v)
	}
	p = putF32(p, r.Q[1])
	p = putF32(p, r.Q[2])
	p = putF32(p, r.Q[3])
	p = putF32(p, r.Q[0])
	p = putF32(p, r.AvgTemp)

	return append(cobs.Encode(p), 0)
}

// WriteRawFrame stages both raw chunks of f to the sink.
func (s *Sink) WriteRawFrame(f acqring.Frame) {
	c1, c2 := EncodeRawFrame(f)
	s.Write(c1)
	s.Write(c2)
}

// WriteCalibratedRecord stages the calibrated chunk of r to the sink.
func (s *Sink) WriteCalibratedRecord(r integrator.Record) {
	s.Write(EncodeCalibratedRecord(r))
}
