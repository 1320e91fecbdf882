package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/robot"
)

func TestIsSOArm(t *testing.T) {
	servos := func(ids ...int) []feetech.FoundServo {
		out := make([]feetech.FoundServo, len(ids))
		for i, id := range ids {
			out[i] = feetech.FoundServo{ID: id}
		}
		return out
	}
	assert.True(t, isSOArm(servos(1, 2, 3, 4, 5, 6)))
	assert.True(t, isSOArm(servos(6, 5, 4, 3, 2, 1)))
	assert.False(t, isSOArm(servos(1, 2, 3, 4, 5)))
	assert.False(t, isSOArm(servos(1, 2, 3, 4, 5, 7)))
	assert.False(t, isSOArm(servos(1, 1, 2, 3, 4, 5)))
}

func positions(v int) map[robot.MotorName]int {
	out := map[robot.MotorName]int{}
	for _, name := range robot.AllMotors() {
		out[name] = v
	}
	return out
}

func TestRangeModelTracksExtremes(t *testing.T) {
	reads := []map[robot.MotorName]int{positions(1000), positions(3000), positions(2000)}
	i := 0
	read := func() (map[robot.MotorName]int, error) {
		p := reads[i]
		i++
		return p, nil
	}

	var m tea.Model = newRangeModel(read, positions(2000))
	for range reads {
		m, _ = m.Update(tickMsg{})
	}
	rm := m.(rangeModel)
	assert.Equal(t, 2000, rm.cur[robot.Gripper])

	cal, err := rm.calibration()
	require.NoError(t, err)
	assert.Equal(t, robot.MotorCalibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, cal[robot.Gripper])
	assert.Equal(t, 1, cal[robot.ShoulderPan].ID)
	assert.Contains(t, rm.View(), "shoulder_pan")
}

func TestRangeModelUnexplored(t *testing.T) {
	m := newRangeModel(func() (map[robot.MotorName]int, error) { return positions(5), nil }, positions(5))
	_, err := m.calibration()
	assert.ErrorContains(t, err, "move every joint")
}

func TestRangeModelReadError(t *testing.T) {
	m := newRangeModel(func() (map[robot.MotorName]int, error) { return nil, errors.New("bus timeout") }, positions(5))
	next, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)
	assert.Contains(t, next.View(), "bus timeout")

	quit, _ := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, quit.View())
}
