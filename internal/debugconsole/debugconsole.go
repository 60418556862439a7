// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package debugconsole is bench-only tooling: a websocket inspector over
// the register plane and sensor presence bitmap, for use on a developer's
// bench rather than in deployed firmware. It is not part of the
// slave-bus protocol itself.
package debugconsole

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/imucluster/internal/regbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // bench tool, not exposed beyond a developer's workstation
	},
}

// Response is the single message shape sent back to the client.
type Response struct {
	Type      string `json:"type"` // "register", "register_map", "presence", "status", "error"
	Address   string `json:"addr,omitempty"`
	Value     string `json:"value,omitempty"`
	Values    string `json:"values,omitempty"`
	Presence  string `json:"presence,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// session holds one client connection's state.
type session struct {
	conn *websocket.Conn
	reg  *regbus.Plane
}

// Handler returns an http.HandlerFunc that upgrades to a websocket and
// serves the register/presence inspector against reg.
func Handler(reg *regbus.Plane) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("debugconsole: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		s := &session{conn: conn, reg: reg}
		s.sendStatus("connected")

		for {
			var raw map[string]interface{}
			if err := conn.ReadJSON(&raw); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("debugconsole: websocket error: %v", err)
				}
				return
			}

			action, _ := raw["action"].(string)
			switch action {
			case "read_reg":
				s.handleReadReg(raw)
			case "read_all":
				s.handleReadAll()
			case "dump_presence":
				s.handleDumpPresence()
			case "set_mode":
				s.handleSetMode(raw)
			default:
				s.sendError(fmt.Sprintf("unknown action: %q", action))
			}
		}
	}
}

func (s *session) handleReadReg(raw map[string]interface{}) {
	addrF, ok := raw["addr"].(float64)
	if !ok {
		s.sendError("missing or invalid addr field")
		return
	}
	addr := int(addrF)
	resp := Response{
		Type:      "register",
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%02X", s.reg.Get(addr)),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.conn.WriteJSON(resp)
}

func (s *session) handleReadAll() {
	values := s.reg.GetRange(0, regbus.RegCount)
	resp := Response{
		Type:      "register_map",
		Values:    fmt.Sprintf("%x", values),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.conn.WriteJSON(resp)
}

func (s *session) handleDumpPresence() {
	b := s.reg.GetRange(regbus.RegIMUEnable1, 4)
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	resp := Response{
		Type:      "presence",
		Presence:  fmt.Sprintf("0x%08X", bits),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.conn.WriteJSON(resp)
}

// handleSetMode is a narrow bench convenience: it replays a DAQ control
// write through the slave-bus state machine (START, register address, new
// byte, STOP), so a developer can switch modes from the console without an
// external bus master. Because the write goes through the bus protocol it
// raises the update flag, and the mode controller's next Observe picks it
// up.
func (s *session) handleSetMode(raw map[string]interface{}) {
	modeF, ok := raw["mode"].(float64)
	if !ok {
		s.sendError("missing or invalid mode field")
		return
	}
	daq := s.reg.Get(regbus.RegIMUDAQ)
	daq &^= regbus.ModeMask
	daq |= (byte(modeF) << regbus.ModeShift) & regbus.ModeMask
	s.reg.OnStart()
	s.reg.OnDataWrite(regbus.RegIMUDAQ)
	s.reg.OnDataWrite(daq)
	s.reg.OnStop()

	s.sendStatus(fmt.Sprintf("mode set to %d", int(modeF)))
}

func (s *session) sendStatus(msg string) {
	s.conn.WriteJSON(Response{Type: "status", Message: msg, Timestamp: time.Now().Format(time.RFC3339)})
}

func (s *session) sendError(msg string) {
	s.conn.WriteJSON(Response{Type: "error", Message: msg, Timestamp: time.Now().Format(time.RFC3339)})
}
