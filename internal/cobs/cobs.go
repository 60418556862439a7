// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cobs implements Consistent-Overhead Byte Stuffing, as described
// in Cheshire & Baker, "Consistent Overhead Byte Stuffing". It removes
// every zero byte from a payload so a single zero byte can unambiguously
// mark a frame boundary on the wire.
package cobs

import "fmt"

// MaxRunLength is the largest number of bytes a single code byte can cover.
const MaxRunLength = 0xFE

// Encode stuffs src and returns the COBS-encoded frame, including the
// leading code byte but excluding any trailing zero delimiter. The caller
// is responsible for appending the zero frame delimiter on the wire.
func Encode(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/MaxRunLength+1)

	codePos := 0
	dst = append(dst, 0) // placeholder for the first code byte
	code := byte(0x01)

	for _, b := range src {
		if b == 0 {
			dst[codePos] = code
			codePos = len(dst)
			dst = append(dst, 0)
			code = 0x01
			continue
		}

		dst = append(dst, b)
		code++
		if code == 0xFF {
			dst[codePos] = code
			codePos = len(dst)
			dst = append(dst, 0)
			code = 0x01
		}
	}
	dst[codePos] = code

	return dst
}

// Decode reverses Encode, returning the original payload. It does not expect
// or consume a trailing zero delimiter.
func Decode(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))

	i := 0
	for i < len(src) {
		code := src[i]
		if code == 0 {
			return nil, fmt.Errorf("cobs: unexpected zero code byte at offset %d", i)
		}
		i++

		runLen := int(code) - 1
		if i+runLen > len(src) {
			return nil, fmt.Errorf("cobs: truncated run at offset %d: need %d bytes, have %d", i, runLen, len(src)-i)
		}
		for j, b := range src[i : i+runLen] {
			if b == 0 {
				return nil, fmt.Errorf("cobs: unexpected zero byte at offset %d", i+j)
			}
		}
		dst = append(dst, src[i:i+runLen]...)
		i += runLen

		// A code of 0xFF means the 254-byte run was full and did not
		// terminate on a source zero: no implicit zero follows.
		if code != 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}

	return dst, nil
}
