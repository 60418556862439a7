// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// calibgen loads a calibration coefficients file and prints the derived
// inverse scale/misalignment matrices for each sensor, flagging any block
// whose closed-form inverse is too close to a singularity to trust. Run it
// after producing a new coefficients file to sanity-check it before
// deploying to the array.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/relabs-tech/imucluster/internal/calib"
)

func main() {
	calibPath := flag.String("calib", "calibration.json", "path to calibration coefficients file")
	sensors := flag.Int("sensors", 32, "number of sensor indices to derive")
	flag.Parse()

	blocks, err := calib.LoadFile(*calibPath, *sensors)
	if err != nil {
		log.Fatalf("failed to load coefficients: %v", err)
	}

	for i := range blocks {
		fmt.Printf("sensor %d:\n", i)
		if !blocks[i].Init() {
			fmt.Printf("  NEAR-SINGULAR: this sensor would be excluded at boot\n")
			continue
		}
		printMatrix("  A_ISM", blocks[i].AISM)
		printMatrix("  G_ISM", blocks[i].GISM)
	}
}

func printMatrix(name string, m [9]float64) {
	fmt.Printf("%s:\n", name)
	for row := 0; row < 3; row++ {
		fmt.Printf("    % .9f % .9f % .9f\n", m[3*row], m[3*row+1], m[3*row+2])
	}
}
