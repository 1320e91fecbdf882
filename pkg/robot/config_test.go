package robot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := &Config{Arm: ArmConfig{Port: "/dev/ttyACM0", Calibration: fullCalibration()}, StepSize: 2.5}
	require.NoError(t, cfg.SaveTo(path))

	got, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.True(t, got.Arm.IsCalibrated())
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfigFrom(filepath.Join(dir, "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadConfigFrom(bad)
	assert.ErrorContains(t, err, "parse config")
}
