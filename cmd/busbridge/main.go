// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// busbridge is a bench tool: it opens a serial port standing in for the
// two-wire slave bus hardware and feeds the byte stream into the register
// plane's protocol state machine, so a master implementation can be
// exercised against the real register semantics without the MCU.
//
// Wire protocol on the serial link, one opcode byte per bus event:
//
//	0x01 <a>   START, followed by the address byte (7-bit address << 1).
//	           Transactions addressed to another slave are ignored until
//	           the next STOP, as the bus hardware would.
//	0x02       STOP
//	0x03 <b>   DATA, master transmitting byte b
//	0x04       DATA, master receiving; the bridge replies with one byte
package main

import (
	"bufio"
	"flag"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/imucluster/internal/config"
	"github.com/relabs-tech/imucluster/internal/regbus"
)

const (
	opStart = 0x01
	opStop  = 0x02
	opWrite = 0x03
	opRead  = 0x04
)

func main() {
	log.Println("starting imucluster slave-bus bridge")

	configPath := flag.String("config", "imucluster_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	if cfg.BusBridgeSerialPort == "" {
		log.Fatalf("BUS_BRIDGE_SERIAL_PORT is not configured")
	}

	serialOpts := serial.OpenOptions{
		PortName:        cfg.BusBridgeSerialPort,
		BaudRate:        uint(cfg.BusBridgeBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		log.Fatalf("failed to open serial port: %v", err)
	}
	defer port.Close()
	log.Printf("bridge serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	slaveAddr := cfg.SlaveAddress
	if slaveAddr == 0 {
		slaveAddr = regbus.SlaveAddress
	}

	reg := regbus.New()
	reader := bufio.NewReader(port)
	selected := false

	for {
		op, err := reader.ReadByte()
		if err != nil {
			log.Fatalf("serial read: %v", err)
		}

		if !selected && op != opStart && op != opStop {
			// Addressed to another slave; swallow until STOP.
			if op == opWrite {
				if _, err := reader.ReadByte(); err != nil {
					log.Fatalf("serial read: %v", err)
				}
			}
			continue
		}

		switch op {
		case opStart:
			a, err := reader.ReadByte()
			if err != nil {
				log.Fatalf("serial read: %v", err)
			}
			selected = a>>1 == slaveAddr
			if selected {
				reg.OnStart()
			}
		case opStop:
			reg.OnStop()
			selected = false
			if reg.RegisterUpdated() {
				log.Printf("DAQ control written: 0x%02X", reg.Get(regbus.RegIMUDAQ))
				reg.ClearRegisterUpdated()
			}
		case opWrite:
			b, err := reader.ReadByte()
			if err != nil {
				log.Fatalf("serial read: %v", err)
			}
			reg.OnDataWrite(b)
		case opRead:
			v := reg.OnDataRead()
			if _, err := port.Write([]byte{v}); err != nil {
				log.Fatalf("serial write: %v", err)
			}
		default:
			log.Printf("unknown opcode 0x%02X, ignoring", op)
		}
	}
}
