package config

import (
	"github.com/chase3718/gesturebridge/internal/eme"
	"github.com/chase3718/gesturebridge/internal/param"
)

// Smoothing times in seconds.
const (
	moveSmoothing      = 0.05
	pinchSmoothing     = 0.1
	opennessSmoothing  = 0.15
	proximitySmoothing = 0.125
	velocitySmoothing  = 0.2
	surfaceSmoothing   = 0.25
)

// Dispatch thresholds. Position is sent on 14 bits, so it needs a much
// finer threshold than the 7-bit controls.
const (
	moveThreshold     = 0.00001
	velocityThreshold = 0.00025
	pinchThreshold    = 0.001
	opennessThreshold = 0.001
)

// DefaultTable is the built-in parameter table: each hand on its own MIDI
// channel (position on 14-bit CC 0/1, openness, proximity, pinch and
// velocity on 7-bit CCs) plus the first hand steering the control-surface
// position.
func DefaultTable() *Table {
	var specs []param.Spec
	for ch, hand := range []string{"first", "second"} {
		c := uint8(ch)
		specs = append(specs,
			param.Spec{
				ID:            hand + "-x",
				SmoothingTime: moveSmoothing,
				Threshold:     moveThreshold,
				SourceFields:  []string{hand + ".x"},
				Destination:   param.CC14(c, 0),
			},
			param.Spec{
				ID:            hand + "-y",
				SmoothingTime: moveSmoothing,
				Threshold:     moveThreshold,
				SourceFields:  []string{hand + ".y"},
				Invert:        true,
				Destination:   param.CC14(c, 1),
			},
			param.Spec{
				ID:            hand + "-openness",
				SmoothingTime: opennessSmoothing,
				Threshold:     opennessThreshold,
				SourceFields:  []string{hand + ".openness"},
				Destination:   param.CC(c, 2),
			},
			param.Spec{
				ID:            hand + "-proximity",
				SmoothingTime: proximitySmoothing,
				SourceFields:  []string{hand + ".proximity"},
				Destination:   param.CC(c, 3),
			},
			param.Spec{
				ID:            hand + "-pinch",
				SmoothingTime: pinchSmoothing,
				Threshold:     pinchThreshold,
				SourceFields:  []string{hand + ".pinch"},
				Destination:   param.CC(c, 4),
			},
			param.Spec{
				ID:            hand + "-velocity",
				SmoothingTime: velocitySmoothing,
				Threshold:     velocityThreshold,
				SourceFields:  []string{hand + ".velocity"},
				Destination:   param.CC(c, 8),
			},
		)
	}

	specs = append(specs,
		param.Spec{
			ID:            "surface-x",
			SmoothingTime: surfaceSmoothing,
			SourceFields:  []string{"first.x"},
			Initial:       0.5,
			Destination:   param.Address(eme.DefaultAddress, eme.KeyPositionX),
		},
		param.Spec{
			ID:            "surface-y",
			SmoothingTime: surfaceSmoothing,
			SourceFields:  []string{"first.y"},
			Invert:        true,
			Initial:       0.5,
			Destination:   param.Address(eme.DefaultAddress, eme.KeyPositionY),
		},
	)
	return &Table{Parameters: specs}
}
