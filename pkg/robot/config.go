package robot

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultConfigFile is where setup writes and playback reads the arm
// configuration.
const DefaultConfigFile = "robodata.json"

// DefaultStepSize is the normalized distance a unit delta action moves a
// joint in one step.
const DefaultStepSize = 5.0

// Config holds the robot configuration
type Config struct {
	Arm ArmConfig `json:"arm"`
	// StepSize scales delta actions, DefaultStepSize when zero.
	StepSize float64 `json:"step_size,omitempty"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// LoadConfigFrom reads the configuration written by setup.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveTo writes the configuration as indented JSON.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
