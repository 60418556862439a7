// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values for the inertial core.
type Config struct {
	// Sensor bus
	SensorSPIDevice string   // SPI device the N sensors share
	SensorCSPins    []string // chip-select pin name per sensor index, length NumSensors

	// Sample timing
	SampleRateHz   int // acquisition tick rate, e.g. 200
	RingCapacity   int // acquisition ring slot count, e.g. 100
	IdentityRetry  int // WHO_AM_I attempts before marking a sensor absent
	OutputDivDefau int // boot-time output divider seeded into the DAQ register

	// Slave bus (register plane external interface)
	SlaveAddress byte // 7-bit slave bus address, e.g. 0x30

	// Storage
	SDMountPath   string // root directory standing in for the mass-storage mount
	LogFileName   string // e.g. "data.txt"
	CalibFilePath string // path to calibration coefficients JSON

	// Debug sink
	DebugSinkPath string // optional text sink for init diagnostics, "" disables

	// Bench tooling (ambient, not part of the embedded core's contract)
	BusBridgeSerialPort string
	BusBridgeBaudRate   int
	DebugConsoleAddr    string // host:port for the websocket debug console
	MQTTBroker          string
	MQTTClientID        string
	MQTTTopicPrefix     string
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) setValue(key, value string) error {
	switch key {
	case "SENSOR_SPI_DEVICE":
		c.SensorSPIDevice = value
	case "SENSOR_CS_PINS":
		c.SensorCSPins = strings.Split(value, ",")
	case "SAMPLE_RATE_HZ":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_RATE_HZ %q: %w", value, err)
		}
		c.SampleRateHz = v
	case "RING_CAPACITY":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RING_CAPACITY %q: %w", value, err)
		}
		c.RingCapacity = v
	case "IDENTITY_RETRY":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IDENTITY_RETRY %q: %w", value, err)
		}
		c.IdentityRetry = v
	case "OUTPUT_DIVIDER_DEFAULT":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid OUTPUT_DIVIDER_DEFAULT %q: %w", value, err)
		}
		c.OutputDivDefau = v
	case "SLAVE_ADDRESS":
		v, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("invalid SLAVE_ADDRESS %q: %w", value, err)
		}
		c.SlaveAddress = byte(v)
	case "SD_MOUNT_PATH":
		c.SDMountPath = value
	case "LOG_FILE_NAME":
		c.LogFileName = value
	case "CALIB_FILE_PATH":
		c.CalibFilePath = value
	case "DEBUG_SINK_PATH":
		c.DebugSinkPath = value
	case "BUS_BRIDGE_SERIAL_PORT":
		c.BusBridgeSerialPort = value
	case "BUS_BRIDGE_BAUD_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_BRIDGE_BAUD_RATE %q: %w", value, err)
		}
		c.BusBridgeBaudRate = v
	case "DEBUG_CONSOLE_ADDR":
		c.DebugConsoleAddr = value
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value
	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return nil
}

func (c *Config) validate() error {
	if c.SensorSPIDevice == "" {
		return fmt.Errorf("SENSOR_SPI_DEVICE is required")
	}
	if len(c.SensorCSPins) == 0 {
		return fmt.Errorf("SENSOR_CS_PINS is required")
	}
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive")
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("RING_CAPACITY must be positive")
	}
	if c.IdentityRetry <= 0 {
		return fmt.Errorf("IDENTITY_RETRY must be positive")
	}
	if c.OutputDivDefau < 2 {
		return fmt.Errorf("OUTPUT_DIVIDER_DEFAULT must be >= 2")
	}
	if c.SDMountPath == "" {
		return fmt.Errorf("SD_MOUNT_PATH is required")
	}
	if c.LogFileName == "" {
		c.LogFileName = "data.txt"
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Safe to call
// more than once; only the first call takes effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this returns nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
