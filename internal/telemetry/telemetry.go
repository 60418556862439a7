// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry is an optional bench-monitoring bridge: it republishes
// the current processed record, presence bitmap, and operating mode over
// MQTT on a fixed tick, for dashboards watching an array on the bench. It
// has no bearing on the slave-bus contract itself.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/imucluster/internal/integrator"
	"github.com/relabs-tech/imucluster/internal/regbus"
)

// recordPayload is the JSON shape published on the record topic.
type recordPayload struct {
	DeltaTheta          [3]float64 `json:"delta_theta"`
	DeltaV              [3]float64 `json:"delta_v"`
	AccumulatedVelocity [3]float64 `json:"accumulated_velocity"`
	Q                   [4]float64 `json:"quaternion"`
	AvgTemp             float64    `json:"avg_temp_c"`
	TickStamp           uint32     `json:"tick"`
}

// Bridge republishes core.Consumer's latest output on a fixed interval.
type Bridge struct {
	client       mqtt.Client
	topicPrefix  string
	reg          *regbus.Plane
	recordSource func() integrator.Record
}

// Config holds the broker connection parameters.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// New connects to the configured broker and returns a Bridge. recordSource
// supplies the most recently published record on each tick; reg supplies
// presence and mode.
func New(cfg Config, reg *regbus.Plane, recordSource func() integrator.Record) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: MQTT connect: %w", token.Error())
	}

	return &Bridge{client: client, topicPrefix: cfg.TopicPrefix, reg: reg, recordSource: recordSource}, nil
}

// Run publishes on every tick of period until stop is closed.
func (b *Bridge) Run(stop <-chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			b.client.Disconnect(250)
			return
		case <-ticker.C:
			b.publishOnce()
		}
	}
}

func buildRecordPayload(rec integrator.Record) recordPayload {
	return recordPayload{
		DeltaTheta:          rec.DeltaTheta,
		DeltaV:              rec.DeltaV,
		AccumulatedVelocity: rec.AccumulatedVelocity,
		Q:                   [4]float64(rec.Q),
		AvgTemp:             rec.AvgTemp,
		TickStamp:           rec.TickStamp,
	}
}

func (b *Bridge) publishOnce() {
	payload := buildRecordPayload(b.recordSource())
	if bytes, err := json.Marshal(payload); err != nil {
		log.Printf("telemetry: marshal record: %v", err)
	} else if token := b.client.Publish(b.topicPrefix+"/record", 0, true, bytes); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: publish record: %v", token.Error())
	}

	presence := b.reg.GetRange(regbus.RegIMUEnable1, 4)
	if token := b.client.Publish(b.topicPrefix+"/presence", 0, true, []byte(fmt.Sprintf("%x", presence))); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: publish presence: %v", token.Error())
	}

	mode := fmt.Sprintf("%d", b.reg.GetMode())
	if token := b.client.Publish(b.topicPrefix+"/mode", 0, true, []byte(mode)); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: publish mode: %v", token.Error())
	}
}
