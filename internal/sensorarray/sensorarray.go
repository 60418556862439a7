// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensorarray owns the boot handshake, presence bitmap, and power
// state of the sensor array. It talks to internal/sensorbus to identify and
// configure each sensor, and excludes any sensor that fails identification
// from all later acquisition and averaging.
package sensorarray

import (
	"log"
	"time"
)

// Bus is the subset of sensorbus.Bus's contract the array manager needs for
// the boot handshake and power control.
type Bus interface {
	ReadByte(idx int, reg byte) (byte, error)
	WriteByte(idx int, reg byte, data byte) error
}

// Register addresses used during the boot sequence (MPU9250/9255 family).
const (
	regWhoAmI       = 0x75
	regPwrMgmt1     = 0x6B
	regUserCtrl     = 0x6A
	regAccelConfig  = 0x1C
	regGyroConfig   = 0x1B
	regLPModeCfg    = 0x1E
	regAccelConfig2 = 0x1D
)

const (
	pwrMgmt1PLL   = 0x01
	pwrMgmt1Sleep = 0x40

	userCtrlI2CDisable = 0x10

	accelConfigFS2G = 0x00

	gyroConfigFS250  = 0x00
	gyroConfigBypLPF = 0x00
	lpModeCfgGLP     = 0x80
	lpModeCfg2XAvg   = 0x20
	accelCfg2_4XAvg  = 0x00
	accelCfg2BypLPF  = 0x00
	accelCfg2DLPFCfg = 0x07
)

// DefaultIdentities is the accepted set of WHO_AM_I replies. Standard parts
// return 0xAF or 0xAE depending on silicon revision.
var DefaultIdentities = []byte{0xAF, 0xAE}

// Array manages presence, power, and boot configuration for N sensors
// behind a shared sensorbus.Bus.
type Array struct {
	bus        Bus
	n          int
	identities []byte
	retries    int

	presence uint32 // bit i set => sensor i present
}

// New creates an array manager for n sensors. retries is the number of
// WHO_AM_I attempts before a sensor is declared absent; it is used as
// given, with no default.
// identities is the accepted set of WHO_AM_I reply bytes; if empty,
// DefaultIdentities is used.
func New(bus Bus, n int, retries int, identities []byte) *Array {
	if len(identities) == 0 {
		identities = DefaultIdentities
	}
	return &Array{bus: bus, n: n, identities: identities, retries: retries}
}

// NumSensors returns N.
func (a *Array) NumSensors() int {
	return a.n
}

// Presence returns the current presence bitmap, bit i set if sensor i is
// usable this session.
func (a *Array) Presence() uint32 {
	return a.presence
}

// IsPresent reports whether sensor i is usable.
func (a *Array) IsPresent(i int) bool {
	return a.presence&(1<<uint(i)) != 0
}

func (a *Array) clearPresent(i int) {
	a.presence &^= 1 << uint(i)
}

func (a *Array) setPresent(i int) {
	a.presence |= 1 << uint(i)
}

func (a *Array) matchesIdentity(id byte) bool {
	for _, want := range a.identities {
		if id == want {
			return true
		}
	}
	return false
}

// Boot runs the identity handshake and fixed configuration sequence for
// every sensor in [0, N). It never retries at runtime; a sensor that fails
// identification is excluded from the presence bitmap permanently for this
// session.
func (a *Array) Boot() {
	for i := 0; i < a.n; i++ {
		found := false
		for attempt := 0; attempt < a.retries; attempt++ {
			id, err := a.bus.ReadByte(i, regWhoAmI)
			if err == nil && a.matchesIdentity(id) {
				found = true
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if !found {
			log.Printf("sensorarray: sensor %d failed identification after %d attempts, excluding", i, a.retries)
			a.clearPresent(i)
			continue
		}
		a.setPresent(i)
		if err := a.configure(i); err != nil {
			log.Printf("sensorarray: sensor %d configuration failed: %v, excluding", i, err)
			a.clearPresent(i)
		}
	}
}

func (a *Array) configure(i int) error {
	// Wake from sleep, select internal PLL as clock source.
	if err := a.bus.WriteByte(i, regPwrMgmt1, pwrMgmt1PLL); err != nil {
		return err
	}
	// Disable the sensor's own I2C slave interface (SPI-only mode).
	if err := a.bus.WriteByte(i, regUserCtrl, userCtrlI2CDisable); err != nil {
		return err
	}
	// Accelerometer full range +/- 2g.
	if err := a.bus.WriteByte(i, regAccelConfig, accelConfigFS2G); err != nil {
		return err
	}
	// Gyro full range +/- 250 dps, low-pass filter bypassed.
	if err := a.bus.WriteByte(i, regGyroConfig, gyroConfigFS250|gyroConfigBypLPF); err != nil {
		return err
	}
	// Gyro low-power mode, 2x averaging.
	if err := a.bus.WriteByte(i, regLPModeCfg, lpModeCfgGLP|lpModeCfg2XAvg); err != nil {
		return err
	}
	// Accelerometer low-power mode, bypassed DLPF, programmed averaging.
	if err := a.bus.WriteByte(i, regAccelConfig2, accelCfg2_4XAvg|accelCfg2BypLPF|accelCfg2DLPFCfg); err != nil {
		return err
	}
	return nil
}

// Exclude clears sensor i's presence bit. Presence only ever decreases
// after boot; this is used when a sensor's calibration turns out to be
// unusable (near-singular coefficients) or a persistent fault is observed.
func (a *Array) Exclude(i int) {
	if i < 0 || i >= a.n {
		return
	}
	a.clearPresent(i)
}

// PowerDown sets the sleep bit in the power-management register.
func (a *Array) PowerDown(i int) error {
	return a.bus.WriteByte(i, regPwrMgmt1, pwrMgmt1Sleep|pwrMgmt1PLL)
}

// PowerUp clears the sleep bit while keeping the PLL clock source selected.
func (a *Array) PowerUp(i int) error {
	return a.bus.WriteByte(i, regPwrMgmt1, pwrMgmt1PLL)
}

// PowerDownAllPresent powers down every present sensor.
func (a *Array) PowerDownAllPresent() {
	for i := 0; i < a.n; i++ {
		if a.IsPresent(i) {
			if err := a.PowerDown(i); err != nil {
				log.Printf("sensorarray: power down sensor %d: %v", i, err)
			}
		}
	}
}

// PowerUpAllPresent powers up every present sensor.
func (a *Array) PowerUpAllPresent() {
	for i := 0; i < a.n; i++ {
		if a.IsPresent(i) {
			if err := a.PowerUp(i); err != nil {
				log.Printf("sensorarray: power up sensor %d: %v", i, err)
			}
		}
	}
}
