// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package modectl implements the mode controller: observed from the
// foreground at a quiescent point, it coordinates start/stop of
// acquisition with the streaming / bulk-log-write / bulk-log-read modes,
// and drives the bulk-read chunked file transfer into the SD data window.
package modectl

import (
	"log"
	"sync"

	"github.com/relabs-tech/imucluster/internal/logsink"
	"github.com/relabs-tech/imucluster/internal/regbus"
)

// Acquisition is the subset of the tick-timer/array-power lifecycle the
// mode controller drives. Disabling acquisition also powers down every
// present sensor.
type Acquisition interface {
	Start()
	Stop()
}

// Controller coordinates mode transitions. Acquisition-enable, file handle
// state, and mode must change together, so every transition runs under one
// mutex.
type Controller struct {
	mu sync.Mutex

	reg  *regbus.Plane
	acq  Acquisition
	disk logsink.Disk

	writer *logsink.Sink
	reader *logsink.FileReadStore
}

// New creates a Controller. disk is the abstract mass-storage collaborator;
// a nil disk is valid and simply fails every file open: streaming mode is
// unaffected, bulk-log-write mode runs with no log file, and
// bulk-log-read mode raises SD_EOF.
func New(reg *regbus.Plane, acq Acquisition, disk logsink.Disk) *Controller {
	return &Controller{reg: reg, acq: acq, disk: disk}
}

// Observe checks the update flag and, if set and the bus machine is idle,
// performs the mode transition. It is meant to be polled from the
// foreground's quiescent point.
func (c *Controller) Observe() {
	if !c.reg.RegisterUpdated() || c.reg.State() != regbus.StateIdle {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log.Printf("modectl: applying mode update")
	c.acq.Stop()
	c.closeWriter()
	c.closeReader()

	switch c.reg.GetMode() {
	case regbus.ModeStreaming:
		log.Printf("modectl: entering streaming mode")
		if c.reg.IsDAQEnabled() {
			c.acq.Start()
		}
	case regbus.ModeBulkWrite:
		log.Printf("modectl: entering bulk log write mode")
		c.openWriter()
		if c.reg.IsDAQEnabled() {
			c.acq.Start()
		}
	case regbus.ModeBulkRead:
		log.Printf("modectl: entering bulk log read mode")
		c.reg.ForceDAQDisable()
		c.reg.ClearSDReady()
		c.reg.ClearSDEOF()
		c.openReader()
	default:
		log.Printf("modectl: unknown mode value, leaving acquisition off")
	}

	c.reg.ClearRegisterUpdated()
}

func (c *Controller) openWriter() {
	if c.disk == nil {
		log.Printf("modectl: no storage collaborator configured, continuing without a log file")
		return
	}
	store, err := c.disk.OpenWrite(c.reg.SDOverwrite())
	if err != nil {
		log.Printf("modectl: open log file for write: %v", err)
		return
	}
	c.writer = logsink.New(store)
}

func (c *Controller) closeWriter() {
	if c.writer == nil {
		return
	}
	if err := c.writer.Close(); err != nil {
		log.Printf("modectl: close log writer: %v", err)
	}
	c.writer = nil
}

func (c *Controller) openReader() {
	if c.disk == nil {
		log.Printf("modectl: no storage collaborator configured, cannot read log")
		c.reg.RaiseSDEOF()
		return
	}
	r, err := c.disk.OpenRead()
	if err != nil {
		log.Printf("modectl: open log file for read: %v", err)
		c.reg.RaiseSDEOF()
		return
	}
	c.reader = r
}

func (c *Controller) closeReader() {
	if c.reader == nil {
		return
	}
	c.reader.Close()
	c.reader = nil
}

// Writer returns the active bulk-log-write sink, or nil if not in that
// mode. The acquisition consumer uses this to stage calibrated/raw chunks.
func (c *Controller) Writer() *logsink.Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer
}

// PumpSDRead services one SD_READY event in BulkLogRead mode: it reads the
// next SDDataRegCount-byte chunk into the SD data window and raises
// SD_EOF if the chunk is short.
func (c *Controller) PumpSDRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reg.GetMode() != regbus.ModeBulkRead || !c.reg.IsSDDataRequested() {
		return
	}
	if c.reader == nil {
		c.reg.RaiseSDEOF()
		c.reg.ClearSDReady()
		return
	}

	var buf [regbus.SDDataRegCount]byte
	n, err := c.reader.Read(buf[:])
	for i := 0; i < n; i++ {
		c.reg.WriteUint8(regbus.RegSDData+i, buf[i])
	}
	if err != nil || n < regbus.SDDataRegCount {
		c.reg.RaiseSDEOF()
	}
	c.reg.ClearSDReady()
}
