// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/imucluster/internal/acqring"
	"github.com/relabs-tech/imucluster/internal/calib"
	"github.com/relabs-tech/imucluster/internal/config"
	"github.com/relabs-tech/imucluster/internal/core"
	"github.com/relabs-tech/imucluster/internal/debugconsole"
	"github.com/relabs-tech/imucluster/internal/integrator"
	"github.com/relabs-tech/imucluster/internal/logsink"
	"github.com/relabs-tech/imucluster/internal/modectl"
	"github.com/relabs-tech/imucluster/internal/regbus"
	"github.com/relabs-tech/imucluster/internal/sensorarray"
	"github.com/relabs-tech/imucluster/internal/sensorbus"
	"github.com/relabs-tech/imucluster/internal/telemetry"
)

func main() {
	log.Println("starting imucluster inertial core")

	configPath := flag.String("config", "imucluster_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	if cfg.DebugSinkPath != "" {
		f, err := os.OpenFile(cfg.DebugSinkPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("debug sink %s unavailable: %v", cfg.DebugSinkPath, err)
		} else {
			defer f.Close()
			log.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	}

	if _, err := host.Init(); err != nil {
		log.Fatalf("periph host init: %v", err)
	}

	cs := make([]gpio.PinOut, len(cfg.SensorCSPins))
	for i, name := range cfg.SensorCSPins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			log.Fatalf("chip-select pin %q for sensor %d not found", name, i)
		}
		cs[i] = pin
	}

	bus, err := sensorbus.Open(cfg.SensorSPIDevice, cs)
	if err != nil {
		log.Fatalf("failed to open sensor bus: %v", err)
	}

	array := sensorarray.New(bus, bus.NumSensors(), cfg.IdentityRetry, nil)
	reg := regbus.New()

	// Seed the boot-time output divider from config; the master can still
	// reprogram it through the DAQ control register.
	if cfg.OutputDivDefau >= 2 && cfg.OutputDivDefau <= 15 {
		daq := reg.Get(regbus.RegIMUDAQ)
		daq &^= regbus.OutputDividerMask
		daq |= (byte(cfg.OutputDivDefau) << regbus.OutputDividerShift) & regbus.OutputDividerMask
		reg.WriteUint8(regbus.RegIMUDAQ, daq)
	}

	core.Boot(array, reg)
	log.Printf("presence bitmap after boot: 0x%08X", array.Presence())

	blocks, err := calib.LoadFile(cfg.CalibFilePath, array.NumSensors())
	if err != nil {
		log.Printf("calibration load: %v, continuing with identity calibration", err)
	}
	for i := range blocks {
		if !blocks[i].Init() && array.IsPresent(i) {
			log.Printf("sensor %d calibration is near-singular, excluding", i)
			array.Exclude(i)
		}
	}
	reg.SetPresence(array.Presence())

	ring := acqring.New(cfg.RingCapacity)
	acq := core.New(bus, array, ring, float64(cfg.SampleRateHz))
	disk := logsink.NewFileDisk(cfg.SDMountPath, cfg.LogFileName)
	mode := modectl.New(reg, acq, disk)
	consumer := core.NewConsumer(array, ring, blocks, float64(cfg.SampleRateHz), reg, mode)

	// Default register state is Streaming with the DAQ enable bit set.
	if reg.GetMode() == regbus.ModeStreaming && reg.IsDAQEnabled() {
		acq.Start()
	}

	if cfg.DebugConsoleAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", debugconsole.Handler(reg))
			log.Printf("debug console listening on %s", cfg.DebugConsoleAddr)
			if err := http.ListenAndServe(cfg.DebugConsoleAddr, mux); err != nil {
				log.Printf("debug console: %v", err)
			}
		}()
	}

	stopTelemetry := make(chan struct{})
	if cfg.MQTTBroker != "" {
		bridge, err := telemetry.New(telemetry.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, reg, func() integrator.Record { return recordFromPlane(reg) })
		if err != nil {
			log.Printf("telemetry disabled: %v", err)
		} else {
			go bridge.Run(stopTelemetry, time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down")
		cancel()
	}()

	consumer.Run(ctx)
	close(stopTelemetry)
	acq.Stop()
}

// recordFromPlane reassembles a processed record from the streaming output
// registers. Telemetry reads through the register plane rather than the
// integrator so it sees exactly what a bus master would, and picks up the
// plane's locking for free.
func recordFromPlane(reg *regbus.Plane) integrator.Record {
	f := func(addr int) float64 { return float64(reg.ReadFloat32(addr)) }
	return integrator.Record{
		DeltaTheta: [3]float64{f(regbus.RegDeltaThetaX), f(regbus.RegDeltaThetaY), f(regbus.RegDeltaThetaZ)},
		DeltaV:     [3]float64{f(regbus.RegDeltaVelX), f(regbus.RegDeltaVelY), f(regbus.RegDeltaVelZ)},
		AccumulatedVelocity: [3]float64{
			f(regbus.RegAccumVelX), f(regbus.RegAccumVelY), f(regbus.RegAccumVelZ),
		},
		Q: integrator.Quaternion{
			f(regbus.RegQuatW), f(regbus.RegQuatX), f(regbus.RegQuatY), f(regbus.RegQuatZ),
		},
		AvgTemp:       f(regbus.RegTemp),
		AngularRate:   [3]float64{f(regbus.RegAngVelX), f(regbus.RegAngVelY), f(regbus.RegAngVelZ)},
		SpecificForce: [3]float64{f(regbus.RegSpForceX), f(regbus.RegSpForceY), f(regbus.RegSpForceZ)},
		TickStamp:     reg.ReadUint32(regbus.RegTick),
	}
}
