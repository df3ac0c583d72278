package training

import (
	"fmt"
	"strings"
)

// Calibration is a linear correction, calibrated = Slope*raw + Intercept.
type Calibration struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Apply corrects a raw concentration.
func (c Calibration) Apply(raw float64) float64 {
	return c.Slope*raw + c.Intercept
}

// CalibrationTable maps a sensor model identifier to its correction. Lookups
// ignore case and surrounding whitespace.
type CalibrationTable map[string]Calibration

// Lookup returns the correction for model.
func (t CalibrationTable) Lookup(model string) (Calibration, bool) {
	key := normaliseModel(model)
	if key == "" {
		return Calibration{}, false
	}
	for m, c := range t {
		if normaliseModel(m) == key {
			return c, true
		}
	}
	return Calibration{}, false
}

// Validate rejects zero slopes, which would collapse every reading of a model
// to its intercept.
func (t CalibrationTable) Validate() error {
	for m, c := range t {
		if normaliseModel(m) == "" {
			return fmt.Errorf("calibration table has an empty sensor model key")
		}
		if c.Slope == 0 {
			return fmt.Errorf("calibration slope for %q must be non-zero", m)
		}
	}
	return nil
}

func normaliseModel(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// DefaultCalibrationTable holds the PM2.5 corrections for the sensor models
// deployed in the network (AirU and PurpleAir units).
func DefaultCalibrationTable() CalibrationTable {
	return CalibrationTable{
		"PMS1003": {Slope: 0.4108, Intercept: 3.7770},
		"PMS3003": {Slope: 0.7778, Intercept: 2.6536},
		"PMS5003": {Slope: 0.5431, Intercept: 1.0607},
	}
}
