package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/robodata/pkg/robot"
)

// minUsefulRange is the tick span below which a joint's range is shown as
// not yet explored.
const minUsefulRange = 500

const pollInterval = 100 * time.Millisecond

type positionReader func() (map[robot.MotorName]int, error)

// rangeModel polls the servos and tracks the extremes of every joint.
type rangeModel struct {
	read     positionReader
	cur      map[robot.MotorName]int
	lo, hi   map[robot.MotorName]int
	lastErr  error
	quitting bool
}

type tickMsg time.Time

func newRangeModel(read positionReader, start map[robot.MotorName]int) rangeModel {
	m := rangeModel{
		read: read,
		cur:  map[robot.MotorName]int{},
		lo:   map[robot.MotorName]int{},
		hi:   map[robot.MotorName]int{},
	}
	for name, pos := range start {
		m.cur[name], m.lo[name], m.hi[name] = pos, pos, pos
	}
	return m
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m rangeModel) Init() tea.Cmd { return tick() }

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		pos, err := m.read()
		m.lastErr = err
		if err == nil {
			m.observe(pos)
		}
		return m, tick()
	}
	return m, nil
}

func (m *rangeModel) observe(pos map[robot.MotorName]int) {
	for name, p := range pos {
		m.cur[name] = p
		if lo, ok := m.lo[name]; !ok || p < lo {
			m.lo[name] = p
		}
		if hi, ok := m.hi[name]; !ok || p > hi {
			m.hi[name] = p
		}
	}
}

// calibration turns the recorded extremes into servo calibration, servo
// IDs following motor order.
func (m rangeModel) calibration() (robot.Calibration, error) {
	cal := make(robot.Calibration, len(robot.AllMotors()))
	for i, name := range robot.AllMotors() {
		cal[name] = robot.MotorCalibration{
			ID:       firstServoID + i,
			RangeMin: m.lo[name],
			RangeMax: m.hi[name],
		}
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: move every joint through its range", err)
	}
	return cal, nil
}

func (m rangeModel) View() string {
	if m.quitting {
		return ""
	}

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	motorCell := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	plainCell := lipgloss.NewStyle().Padding(0, 1)
	currentCell := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	goodCell := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	lowCell := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	motors := robot.AllMotors()
	rows := make([][]string, 0, len(motors))
	spans := make([]int, 0, len(motors))
	for _, name := range motors {
		span := m.hi[name] - m.lo[name]
		spans = append(spans, span)
		rows = append(rows, []string{
			string(name),
			fmt.Sprint(m.cur[name]),
			fmt.Sprint(m.lo[name]),
			fmt.Sprint(m.hi[name]),
			fmt.Sprint(span),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			switch col {
			case 0:
				return motorCell
			case 1:
				return currentCell
			case 4:
				if row >= 0 && row < len(spans) && spans[row] > minUsefulRange {
					return goodCell
				}
				return lowCell
			default:
				return plainCell
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.lastErr != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("read error: "+m.lastErr.Error()) + "\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}

// recordRange runs the range TUI until the user confirms.
func recordRange(read positionReader) (robot.Calibration, error) {
	start, err := read()
	if err != nil {
		return nil, fmt.Errorf("read start positions: %w", err)
	}
	final, err := tea.NewProgram(newRangeModel(read, start)).Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	return final.(rangeModel).calibration()
}
