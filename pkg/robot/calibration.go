package robot

import (
	"fmt"
)

// MotorCalibration maps one servo's raw ticks onto [-100, 100].
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// Validate checks that every motor is present with a usable range and a
// distinct servo ID.
func (c Calibration) Validate() error {
	seen := make(map[int]MotorName, len(c))
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok {
			return fmt.Errorf("calibration: missing motor %s", name)
		}
		if mc.RangeMax <= mc.RangeMin {
			return fmt.Errorf("calibration: %s has empty range [%d, %d]", name, mc.RangeMin, mc.RangeMax)
		}
		if other, dup := seen[mc.ID]; dup {
			return fmt.Errorf("calibration: %s and %s share servo id %d", other, name, mc.ID)
		}
		seen[mc.ID] = name
	}
	return nil
}

// Normalize converts a raw position to [-100, 100]. Drive mode 1 inverts
// the direction.
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	n := (float64(raw-c.RangeMin)/rangeSize)*200 - 100
	if c.DriveMode == 1 {
		n = -n
	}
	return n
}

// Denormalize converts a normalized value to a raw position inside the
// calibrated range.
func (c MotorCalibration) Denormalize(norm float64) int {
	norm = clampNorm(norm)
	if c.DriveMode == 1 {
		norm = -norm
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// MotorIDs returns the servo IDs in AllMotors order.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
