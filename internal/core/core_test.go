// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package core

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/relabs-tech/imucluster/internal/acqring"
	"github.com/relabs-tech/imucluster/internal/calib"
	"github.com/relabs-tech/imucluster/internal/logsink"
	"github.com/relabs-tech/imucluster/internal/modectl"
	"github.com/relabs-tech/imucluster/internal/regbus"
)

// fakeBus hands back a fixed channel pattern per sensor regardless of
// chip-select index, so tests can check the orientation rewrite landed in
// the expected slot.
type fakeBus struct {
	asserted   []int
	deasserted []int
}

func (b *fakeBus) AssertCS(idx int) error {
	b.asserted = append(b.asserted, idx)
	return nil
}
func (b *fakeBus) DeassertCS(idx int) error {
	b.deasserted = append(b.deasserted, idx)
	return nil
}
func (b *fakeBus) BurstBegin(idx int, reg byte) error { return nil }
func (b *fakeBus) BurstReadU16() (uint16, error)      { return 0x0010, nil } // int16(16) on every channel
func (b *fakeBus) BurstEnd(idx int) error             { return nil }

// fakeArray reports the presence set each test gives it and counts power
// transitions. The orientation test presents sensors 0 and 24, one from
// each orientation extreme the rewrite matters for.
type fakeArray struct {
	n           int
	present     map[int]bool
	poweredUp   int
	poweredDown int
}

func (a *fakeArray) NumSensors() int      { return a.n }
func (a *fakeArray) IsPresent(i int) bool { return a.present[i] }
func (a *fakeArray) PowerUpAllPresent()   { a.poweredUp++ }
func (a *fakeArray) PowerDownAllPresent() { a.poweredDown++ }

func TestAcquireTickAppliesOrientationAndSkipsAbsent(t *testing.T) {
	bus := &fakeBus{}
	array := &fakeArray{n: 32, present: map[int]bool{0: true, 24: true}}
	ring := acqring.New(4)
	c := New(bus, array, ring, 200)

	c.AcquireTick(7)

	f, ok := ring.Pop()
	if !ok {
		t.Fatal("expected a published frame")
	}
	if f.TimeStamp != 7 {
		t.Errorf("TimeStamp = %d, want 7", f.TimeStamp)
	}

	// Sensor 0 is IdentityNeg: board X = -sensor X, so raw 16 -> -16.
	if f.Sensor[0][0] != -16 || f.Sensor[0][1] != -16 {
		t.Errorf("sensor 0 AX/AY = %d/%d, want -16/-16", f.Sensor[0][0], f.Sensor[0][1])
	}
	// Sensor 24 is SwapPos: board X = sensor Y, board Y = -sensor X.
	if f.Sensor[24][0] != 16 || f.Sensor[24][1] != -16 {
		t.Errorf("sensor 24 AX/AY = %d/%d, want 16/-16", f.Sensor[24][0], f.Sensor[24][1])
	}
	// Sensor 1 was never present; its slot must stay untouched (zero).
	if f.Sensor[1] != ([7]int16{}) {
		t.Errorf("sensor 1 slot = %v, want zero (not present)", f.Sensor[1])
	}

	if len(bus.asserted) != 2 || len(bus.deasserted) != 2 {
		t.Errorf("expected exactly 2 chip-select assert/deassert pairs, got %d/%d", len(bus.asserted), len(bus.deasserted))
	}
}

func TestAcquireTickDropsWhenRingFull(t *testing.T) {
	bus := &fakeBus{}
	array := &fakeArray{n: 1, present: map[int]bool{0: true}}
	ring := acqring.New(1)
	c := New(bus, array, ring, 200)

	c.AcquireTick(1)
	c.AcquireTick(2) // ring already full; should be dropped

	if ring.DroppedFrames.Load() != 1 {
		t.Errorf("DroppedFrames = %d, want 1", ring.DroppedFrames.Load())
	}
}

func TestStartStopTogglesArrayPower(t *testing.T) {
	bus := &fakeBus{}
	array := &fakeArray{n: 1, present: map[int]bool{0: true}}
	ring := acqring.New(4)
	c := New(bus, array, ring, 1000)

	c.Start()
	c.Stop()

	if array.poweredUp != 1 || array.poweredDown != 1 {
		t.Errorf("poweredUp/poweredDown = %d/%d, want 1/1", array.poweredUp, array.poweredDown)
	}
}

type memStore struct{ buf bytes.Buffer }

func (m *memStore) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *memStore) Close() error                { return nil }

type memDisk struct{ written *memStore }

func (d *memDisk) OpenWrite(overwrite bool) (logsink.Store, error) {
	d.written = &memStore{}
	return d.written, nil
}
func (d *memDisk) OpenRead() (*logsink.FileReadStore, error) {
	return nil, errors.New("memDisk: no file to read")
}

type fakeAcq struct{}

func (fakeAcq) Start() {}
func (fakeAcq) Stop()  {}

func identityBlock() calib.Block {
	b := calib.Block{}
	b.Init()
	return b
}

func TestConsumerPublishesRegistersOnDividerBoundary(t *testing.T) {
	array := &fakeArray{n: 1, present: map[int]bool{0: true}}
	ring := acqring.New(8)
	reg := regbus.New()
	// Divider 2, DAQ enabled, streaming (the default mode already is
	// streaming; only the divider needs lowering for a fast test).
	reg.OnStart()
	reg.OnDataWrite(regbus.RegIMUDAQ)
	reg.OnDataWrite(regbus.DAQEnableMask | (byte(regbus.ModeStreaming) << regbus.ModeShift) | (2 << regbus.OutputDividerShift))
	reg.OnStop()
	reg.ClearRegisterUpdated()

	mode := modectl.New(reg, fakeAcq{}, nil)
	cs := NewConsumer(array, ring, []calib.Block{identityBlock()}, 200, reg, mode)

	mkFrame := func(ts uint32) acqring.Frame {
		var f acqring.Frame
		f.TimeStamp = ts
		f.Sensor[0] = [7]int16{0, 0, 0, 0, 0, 0, 0}
		return f
	}

	// Three frames fill the Simpson window and step the integrator once;
	// a fourth crosses the divider-2 boundary and should publish.
	for ts := uint32(1); ts <= 4; ts++ {
		cs.Step(mkFrame(ts))
	}

	if reg.Get(regbus.RegQuatW) == 0 && reg.Get(regbus.RegQuatW+1) == 0 &&
		reg.Get(regbus.RegQuatW+2) == 0 && reg.Get(regbus.RegQuatW+3) == 0 {
		t.Error("expected RegQuatW to have been written with a non-zero-pattern float32")
	}

	tick := uint32(reg.Get(regbus.RegTick)) | uint32(reg.Get(regbus.RegTick+1))<<8 |
		uint32(reg.Get(regbus.RegTick+2))<<16 | uint32(reg.Get(regbus.RegTick+3))<<24
	if tick != 4 {
		t.Errorf("published TickStamp = %d, want 4 (the tick that crossed the divider boundary)", tick)
	}
}

func TestConsumerWritesBulkLogInBulkWriteMode(t *testing.T) {
	array := &fakeArray{n: 1, present: map[int]bool{0: true}}
	ring := acqring.New(8)
	reg := regbus.New()
	disk := &memDisk{}
	mode := modectl.New(reg, fakeAcq{}, disk)

	reg.OnStart()
	reg.OnDataWrite(regbus.RegIMUDAQ)
	reg.OnDataWrite(regbus.DAQEnableMask | (byte(regbus.ModeBulkWrite) << regbus.ModeShift) | (2 << regbus.OutputDividerShift))
	reg.OnStop()
	mode.Observe() // opens the bulk-write file

	cs := NewConsumer(array, ring, []calib.Block{identityBlock()}, 200, reg, mode)

	var f acqring.Frame
	f.TimeStamp = 1
	cs.Step(f)

	if disk.written == nil {
		t.Fatal("expected the bulk-write disk to have been opened")
	}
	mode.Writer().Flush()
	if disk.written.buf.Len() == 0 {
		t.Error("expected raw frame bytes staged to the bulk-write sink")
	}
}

func TestIdleRunsModeControllerAndOverrunFlag(t *testing.T) {
	array := &fakeArray{n: 1, present: map[int]bool{0: true}}
	ring := acqring.New(1)
	reg := regbus.New()
	mode := modectl.New(reg, fakeAcq{}, nil)
	cs := NewConsumer(array, ring, []calib.Block{identityBlock()}, 200, reg, mode)

	ring.Reserve()
	ring.Publish()
	ring.Reserve() // ring now full, this call is dropped and counted

	cs.idle()

	if reg.Get(regbus.RegSDStat)&regbus.SDOverrunMask == 0 {
		t.Error("expected the overrun status flag to be set after a dropped frame")
	}
}

func TestIdentityCalibrationBlockIsUsable(t *testing.T) {
	// Sanity check that the identity calibration block really is usable;
	// Init must succeed so core can rely on Apply producing finite values.
	b := calib.Block{}
	if !b.Init() {
		t.Fatal("identity calibration block should never be singular")
	}
	c := b.Apply([7]int16{0, 0, 0, 0, 0, 0, 0})
	if math.IsNaN(c.Accel[0]) || math.IsInf(c.Gyro[0], 0) {
		t.Error("Apply produced a non-finite value from zero input")
	}
}
