// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package core wires the acquisition bus, the sensor array, the ring
// buffer, per-sensor calibration, the Simpson integrator, the register
// plane, and the mode controller into one running pipeline: a tick-driven
// producer standing in for the hardware timer ISR, and a foreground
// consumer loop that calibrates, averages, integrates, and publishes each
// frame according to the active mode. This is the "owned core context" of
// the design: every process-lifetime collaborator hangs off one Context
// value instead of mutable package state.
package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/imucluster/internal/acqring"
	"github.com/relabs-tech/imucluster/internal/calib"
	"github.com/relabs-tech/imucluster/internal/integrator"
	"github.com/relabs-tech/imucluster/internal/modectl"
	"github.com/relabs-tech/imucluster/internal/orientation"
	"github.com/relabs-tech/imucluster/internal/regbus"
	"github.com/relabs-tech/imucluster/internal/sensorarray"
	"github.com/relabs-tech/imucluster/internal/sensorbus"
)

// Bus is the subset of sensorbus.Bus the acquisition producer needs to
// pull one burst frame per sensor. A real *sensorbus.Bus satisfies this
// directly; tests substitute a fake.
type Bus interface {
	AssertCS(idx int) error
	DeassertCS(idx int) error
	BurstBegin(idx int, reg byte) error
	BurstReadU16() (uint16, error)
	BurstEnd(idx int) error
}

// Array is the subset of sensorarray.Array the producer and power
// lifecycle need.
type Array interface {
	NumSensors() int
	IsPresent(i int) bool
	PowerUpAllPresent()
	PowerDownAllPresent()
}

// Context owns the acquisition producer: the SPI bus, the sensor array,
// and the ring buffer it publishes raw frames into. It satisfies
// modectl.Acquisition.
type Context struct {
	bus   Bus
	array Array
	ring  *acqring.Ring

	sampleRateHz float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	tick    uint32
}

// New creates a Context driving array over bus at sampleRateHz, publishing
// raw frames to ring.
func New(bus Bus, array Array, ring *acqring.Ring, sampleRateHz float64) *Context {
	return &Context{bus: bus, array: array, ring: ring, sampleRateHz: sampleRateHz}
}

// Start powers up every present sensor and launches the tick-emulating
// producer goroutine. Go has no interrupt context, so a goroutine paced by
// a time.Ticker stands in for the hardware sample-rate timer.
func (c *Context) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.array.PowerUpAllPresent()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.produce(ctx)
}

// Stop halts the producer and powers down every present sensor.
func (c *Context) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.array.PowerDownAllPresent()
}

func (c *Context) produce(ctx context.Context) {
	defer c.wg.Done()
	period := time.Duration(float64(time.Second) / c.sampleRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick++
			c.AcquireTick(c.tick)
		}
	}
}

// AcquireTick runs one burst read across every present sensor and
// publishes the resulting raw, re-oriented frame to the ring. It is the
// producer half of the SPSC ring (internal/acqring) and is exported so a
// caller can drive acquisition deterministically, e.g. from a test or from
// a real interrupt handler if one becomes available.
func (c *Context) AcquireTick(timeStamp uint32) {
	frame := c.ring.Reserve()
	if frame == nil {
		return // ring full; Reserve already counted the drop
	}
	frame.TimeStamp = timeStamp

	for i := 0; i < c.array.NumSensors(); i++ {
		if !c.array.IsPresent(i) {
			continue
		}
		raw, ok := c.burstRead(i)
		if !ok {
			continue
		}

		o := orientation.ForIndex(i)
		bx, by, bgx, bgy := o.Rewrite(raw[0], raw[1], raw[4], raw[5])
		frame.Sensor[i][0] = bx
		frame.Sensor[i][1] = by
		frame.Sensor[i][2] = raw[2] // AZ, never rewritten
		frame.Sensor[i][3] = raw[3] // TEMP, never rewritten
		frame.Sensor[i][4] = bgx
		frame.Sensor[i][5] = bgy
		frame.Sensor[i][6] = raw[6] // GZ, never rewritten
	}

	c.ring.Publish()
}

func (c *Context) burstRead(i int) (raw [7]int16, ok bool) {
	if err := c.bus.AssertCS(i); err != nil {
		log.Printf("core: assert CS sensor %d: %v", i, err)
		return raw, false
	}
	defer c.bus.DeassertCS(i)

	if err := c.bus.BurstBegin(i, sensorbus.BurstReadRegister()); err != nil {
		log.Printf("core: burst begin sensor %d: %v", i, err)
		return raw, false
	}
	defer c.bus.BurstEnd(i)

	for ch := 0; ch < 7; ch++ {
		v, err := c.bus.BurstReadU16()
		if err != nil {
			log.Printf("core: burst read sensor %d channel %d: %v", i, ch, err)
			return raw, false
		}
		raw[ch] = int16(v)
	}
	return raw, true
}

// Boot runs the array's identity handshake and publishes the resulting
// presence bitmap to the register plane's four enable bytes, per the
// source's startup sequence.
func Boot(array *sensorarray.Array, reg *regbus.Plane) {
	array.Boot()
	reg.SetPresence(array.Presence())
}

// Consumer drains the acquisition ring on the foreground: it calibrates
// and averages each frame, feeds the three-sample Simpson integrator, and
// publishes output at the register-programmed divider rate, routing it to
// the register plane in streaming mode or the bulk-log-write sink in log
// mode. It also polls the mode controller at each quiescent point, the way
// a single-threaded firmware main loop would between frames.
type Consumer struct {
	array Array
	ring  *acqring.Ring
	calib []calib.Block
	integ *integrator.Integrator
	reg   *regbus.Plane
	mode  *modectl.Controller

	outputCount int
}

// NewConsumer creates a Consumer. calibBlocks must have one entry per
// sensor index, already initialized via Block.Init.
func NewConsumer(array Array, ring *acqring.Ring, calibBlocks []calib.Block, sampleRateHz float64, reg *regbus.Plane, mode *modectl.Controller) *Consumer {
	return &Consumer{
		array: array,
		ring:  ring,
		calib: calibBlocks,
		integ: integrator.New(sampleRateHz),
		reg:   reg,
		mode:  mode,
	}
}

// Run drains the ring until ctx is cancelled, processing one frame per
// iteration and polling the mode controller between frames.
func (cs *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok := cs.ring.Pop()
		if !ok {
			cs.idle()
			time.Sleep(time.Millisecond)
			continue
		}
		cs.process(f)
	}
}

// idle runs the quiescent-point housekeeping: mode transitions, the
// bulk-read chunk pump, and the ring-overrun status flag.
func (cs *Consumer) idle() {
	cs.mode.Observe()
	cs.mode.PumpSDRead()
	cs.reg.SetOverrunFlag(cs.ring.DroppedFrames.Load() > 0)
}

// Step processes exactly one frame, for deterministic tests and for
// callers that want to drive the consumer one tick at a time.
func (cs *Consumer) Step(f acqring.Frame) {
	cs.process(f)
}

func (cs *Consumer) process(f acqring.Frame) {
	n := cs.array.NumSensors()

	accel := make([][3]float64, n)
	gyro := make([][3]float64, n)
	tempC := make([]float64, n)
	present := make([]bool, n)

	for i := 0; i < n; i++ {
		if !cs.array.IsPresent(i) {
			continue
		}
		present[i] = true
		cal := cs.calib[i].Apply(f.Sensor[i])
		accel[i] = cal.Accel
		gyro[i] = cal.Gyro
		tempC[i] = cal.TempC
	}

	sample := integrator.Average(accel, gyro, tempC, present)
	cs.integ.Push(sample, f.TimeStamp)

	mode := cs.reg.GetMode()
	if mode == regbus.ModeBulkWrite {
		if w := cs.mode.Writer(); w != nil {
			w.WriteRawFrame(f)
		}
	}

	cs.outputCount++
	if cs.outputCount < cs.reg.OutputDivider() {
		return
	}
	cs.outputCount = 0

	rec := cs.integ.Current(f.TimeStamp)
	switch mode {
	case regbus.ModeStreaming:
		cs.publishRegisters(rec)
	case regbus.ModeBulkWrite:
		if w := cs.mode.Writer(); w != nil {
			w.WriteCalibratedRecord(rec)
		}
	}
}

func (cs *Consumer) publishRegisters(rec integrator.Record) {
	cs.reg.WriteFloat32(regbus.RegDeltaThetaX, float32(rec.DeltaTheta[0]))
	cs.reg.WriteFloat32(regbus.RegDeltaThetaY, float32(rec.DeltaTheta[1]))
	cs.reg.WriteFloat32(regbus.RegDeltaThetaZ, float32(rec.DeltaTheta[2]))

	cs.reg.WriteFloat32(regbus.RegDeltaVelX, float32(rec.DeltaV[0]))
	cs.reg.WriteFloat32(regbus.RegDeltaVelY, float32(rec.DeltaV[1]))
	cs.reg.WriteFloat32(regbus.RegDeltaVelZ, float32(rec.DeltaV[2]))

	cs.reg.WriteFloat32(regbus.RegQuatX, float32(rec.Q[1]))
	cs.reg.WriteFloat32(regbus.RegQuatY, float32(rec.Q[2]))
	cs.reg.WriteFloat32(regbus.RegQuatZ, float32(rec.Q[3]))
	cs.reg.WriteFloat32(regbus.RegQuatW, float32(rec.Q[0]))

	cs.reg.WriteFloat32(regbus.RegTemp, float32(rec.AvgTemp))

	cs.reg.WriteFloat32(regbus.RegAccumVelX, float32(rec.AccumulatedVelocity[0]))
	cs.reg.WriteFloat32(regbus.RegAccumVelY, float32(rec.AccumulatedVelocity[1]))
	cs.reg.WriteFloat32(regbus.RegAccumVelZ, float32(rec.AccumulatedVelocity[2]))

	cs.reg.WriteUint32(regbus.RegTick, rec.TickStamp)

	cs.reg.WriteFloat32(regbus.RegAngVelX, float32(rec.AngularRate[0]))
	cs.reg.WriteFloat32(regbus.RegAngVelY, float32(rec.AngularRate[1]))
	cs.reg.WriteFloat32(regbus.RegAngVelZ, float32(rec.AngularRate[2]))

	cs.reg.WriteFloat32(regbus.RegSpForceX, float32(rec.SpecificForce[0]))
	cs.reg.WriteFloat32(regbus.RegSpForceY, float32(rec.SpecificForce[1]))
	cs.reg.WriteFloat32(regbus.RegSpForceZ, float32(rec.SpecificForce[2]))
}
