// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensorbus implements the transactional SPI adapter shared by all
// sensors on the array: single-byte register read/write and a burst-read
// mode for pulling consecutive registers out of one sensor without
// re-sending the register address each time.
//
// The adapter is not reentrant. All calls are expected to come from either
// init (foreground, before any producer goroutine starts) or the
// acquisition producer; mutual exclusion is the caller's responsibility by
// construction, not enforced here (see internal/acqring).
package sensorbus

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// SPIClockSpeed is the shared clock for the sensor SPI bus.
const SPIClockSpeed = 8 * physic.MegaHertz

// burstReadRegister is where a burst read begins: the accelerometer high
// byte. Subsequent bytes are read back to back without re-addressing.
const burstReadRegister = 0x3B // ACCEL_XOUT_H on the MPU9250/9255 family

// Bus is the shared SPI transport for N sensors, one chip-select pin per
// sensor index.
type Bus struct {
	device spi.Conn
	cs     []gpio.PinOut

	burstActive bool
	burstIdx    int
}

// Open opens the SPI device at path and wraps it with the given per-sensor
// chip-select pins.
func Open(path string, cs []gpio.PinOut) (*Bus, error) {
	dev, err := spireg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sensorbus: open %s: %w", path, err)
	}
	conn, err := dev.Connect(SPIClockSpeed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("sensorbus: connect: %w", err)
	}
	return &Bus{device: conn, cs: cs}, nil
}

// NumSensors returns how many chip-select endpoints this bus drives.
func (b *Bus) NumSensors() int {
	return len(b.cs)
}

func (b *Bus) assert(idx int) error {
	if idx < 0 || idx >= len(b.cs) {
		return fmt.Errorf("sensorbus: sensor index %d out of range [0,%d)", idx, len(b.cs))
	}
	return b.cs[idx].Out(gpio.Low)
}

func (b *Bus) deassert(idx int) error {
	return b.cs[idx].Out(gpio.High)
}

// ReadByte asserts chip select, shifts out (reg | 0x80) followed by a dummy
// byte, and returns the second received byte.
func (b *Bus) ReadByte(idx int, reg byte) (byte, error) {
	if err := b.assert(idx); err != nil {
		return 0, err
	}
	defer b.deassert(idx)

	tx := [...]byte{0x80 | reg, 0x00}
	var rx [2]byte
	if err := b.device.Tx(tx[:], rx[:]); err != nil {
		return 0, fmt.Errorf("sensorbus: read sensor %d reg %#x: %w", idx, reg, err)
	}
	return rx[1], nil
}

// WriteByte asserts chip select, shifts out reg then data, and deasserts.
func (b *Bus) WriteByte(idx int, reg byte, data byte) error {
	if err := b.assert(idx); err != nil {
		return err
	}
	defer b.deassert(idx)

	tx := [...]byte{reg, data}
	var rx [2]byte
	if err := b.device.Tx(tx[:], rx[:]); err != nil {
		return fmt.Errorf("sensorbus: write sensor %d reg %#x: %w", idx, reg, err)
	}
	return nil
}

// BurstBegin shifts out (reg | 0x80) and discards the received byte. The
// caller is responsible for asserting chip select before calling BurstBegin
// and deasserting after BurstEnd; BurstBegin/BurstEnd never touch chip
// select themselves.
func (b *Bus) BurstBegin(idx int, reg byte) error {
	tx := [...]byte{0x80 | reg}
	var rx [1]byte
	if err := b.device.Tx(tx[:], rx[:]); err != nil {
		return fmt.Errorf("sensorbus: burst begin sensor %d reg %#x: %w", idx, reg, err)
	}
	b.burstActive = true
	b.burstIdx = idx
	return nil
}

// BurstReadU16 shifts two dummy bytes and returns them as a big-endian
// uint16, as delivered by the sensor.
func (b *Bus) BurstReadU16() (uint16, error) {
	if !b.burstActive {
		return 0, fmt.Errorf("sensorbus: burst read with no active burst")
	}
	tx := [...]byte{0x00, 0x00}
	var rx [2]byte
	if err := b.device.Tx(tx[:], rx[:]); err != nil {
		return 0, fmt.Errorf("sensorbus: burst read sensor %d: %w", b.burstIdx, err)
	}
	return uint16(rx[0])<<8 | uint16(rx[1]), nil
}

// BurstEnd ends the active burst. It does not touch chip select; the caller
// deasserts it.
func (b *Bus) BurstEnd(idx int) error {
	if !b.burstActive || b.burstIdx != idx {
		return fmt.Errorf("sensorbus: burst end sensor %d with no matching active burst", idx)
	}
	b.burstActive = false
	return nil
}

// AssertCS asserts chip select for idx. Exposed so callers (the acquisition
// producer) control the burst's chip-select window explicitly, per the
// adapter's stated contract.
func (b *Bus) AssertCS(idx int) error {
	return b.assert(idx)
}

// DeassertCS deasserts chip select for idx.
func (b *Bus) DeassertCS(idx int) error {
	return b.deassert(idx)
}

// BurstReadRegister returns the register address a burst read of the
// standard seven-channel frame (AX, AY, AZ, TEMP, GX, GY, GZ) begins at.
func BurstReadRegister() byte {
	return burstReadRegister
}
