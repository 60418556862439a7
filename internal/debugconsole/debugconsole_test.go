// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package debugconsole

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/imucluster/internal/regbus"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r Response
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return r
}

func TestReadRegRoundTrips(t *testing.T) {
	reg := regbus.New()
	reg.WriteUint8(regbus.RegTick, 0x42)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readResponse(t, conn) // initial "connected" status

	conn.WriteJSON(map[string]interface{}{"action": "read_reg", "addr": float64(regbus.RegTick)})
	resp := readResponse(t, conn)

	if resp.Type != "register" || resp.Value != "0x42" {
		t.Errorf("resp = %+v, want register 0x42", resp)
	}
}

func TestDumpPresence(t *testing.T) {
	reg := regbus.New() // default: all 32 sensors present
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readResponse(t, conn)

	conn.WriteJSON(map[string]interface{}{"action": "dump_presence"})
	resp := readResponse(t, conn)

	if resp.Type != "presence" || resp.Presence != "0xFFFFFFFF" {
		t.Errorf("resp = %+v, want presence 0xFFFFFFFF", resp)
	}
}

func TestSetModeAppliesThroughBusProtocol(t *testing.T) {
	reg := regbus.New()
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readResponse(t, conn)

	conn.WriteJSON(map[string]interface{}{"action": "set_mode", "mode": float64(regbus.ModeBulkWrite)})
	resp := readResponse(t, conn)

	if resp.Type != "status" {
		t.Fatalf("resp = %+v, want status", resp)
	}
	if reg.GetMode() != regbus.ModeBulkWrite {
		t.Errorf("GetMode() = %v, want ModeBulkWrite", reg.GetMode())
	}
	if !reg.RegisterUpdated() {
		t.Error("expected the DAQ register write to set the update flag for the mode controller")
	}
}

func TestUnknownActionReturnsError(t *testing.T) {
	reg := regbus.New()
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readResponse(t, conn)

	conn.WriteJSON(map[string]interface{}{"action": "bogus"})
	resp := readResponse(t, conn)

	if resp.Type != "error" {
		t.Errorf("resp.Type = %q, want error", resp.Type)
	}
}
