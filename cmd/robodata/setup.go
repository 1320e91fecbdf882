package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/robodata/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// firstServoID and lastServoID bound the IDs an SO-101 arm answers on.
const firstServoID, lastServoID = 1, 6

type SetupCommand struct {
	Config   string  `long:"config" default:"robodata.json" description:"Where to write the arm configuration"`
	StepSize float64 `long:"step-size" description:"Normalized distance of a unit delta action"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("robodata setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	port, err := pickArm()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating Follower Arm ━━━"))
	fmt.Println()
	cal, err := calibrateArm(port)
	if err != nil {
		return err
	}

	cfg := &robot.Config{Arm: robot.ArmConfig{Port: port, Calibration: cal}, StepSize: c.StepSize}
	if old, err := robot.LoadConfigFrom(c.Config); err == nil && cfg.StepSize == 0 {
		cfg.StepSize = old.StepSize
	}
	if err := cfg.SaveTo(c.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", c.Config)
	fmt.Println()
	fmt.Println("Replay a dataset on the arm with: " +
		headerStyle.Render("robodata playback --backend so101 --use-actions --render --dataset <file>"))
	return nil
}

// pickArm returns the port of the arm the user confirms after it wiggled.
func pickArm() (string, error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	arms, err := findArms()
	if err != nil {
		return "", err
	}
	if len(arms) == 0 {
		return "", errors.New("no SO-101 arm found, check that it is connected and powered on")
	}
	fmt.Printf("Found %d arm(s). Let's identify the follower...\n", len(arms))

	chosen := ""
	for _, arm := range arms {
		if chosen != "" {
			arm.bus.Close()
			continue
		}
		ok, err := identifyArmWithWiggle(arm)
		if err != nil {
			return "", err
		}
		if ok {
			chosen = arm.port
		}
	}
	if chosen == "" {
		return "", errors.New("no arm selected")
	}
	fmt.Println(successStyle.Render("Follower: " + chosen))
	return chosen, nil
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  robot.BusTimeout,
	})
}

// scan opens port and returns the bus when an SO-101 answers on it.
func scan(port string) (*feetech.Bus, []feetech.FoundServo, error) {
	bus, err := openBus(port)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	servos, err := bus.Scan(ctx, firstServoID, lastServoID)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	if !isSOArm(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("%s: not an SO-101 arm (expected servos %d-%d)", port, firstServoID, lastServoID)
	}
	return bus, servos, nil
}

func findArms() ([]armInfo, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	var arms []armInfo
	for _, port := range ports {
		// Bluetooth serial ports on macOS hang on open
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		bus, servos, err := scan(port)
		if err != nil {
			continue
		}
		fmt.Printf("  Found SO-101 arm on %s\n", port)
		arms = append(arms, armInfo{port: port, servos: servos, bus: bus})
	}
	return arms, nil
}

func isSOArm(servos []feetech.FoundServo) bool {
	if len(servos) != lastServoID-firstServoID+1 {
		return false
	}
	ids := make(map[int]bool, len(servos))
	for _, s := range servos {
		ids[s.ID] = true
	}
	for id := firstServoID; id <= lastServoID; id++ {
		if !ids[id] {
			return false
		}
	}
	return true
}

// identifyArmWithWiggle moves the shoulder pan back and forth and asks
// whether this is the arm to use. The bus is closed on return.
func identifyArmWithWiggle(arm armInfo) (bool, error) {
	defer arm.bus.Close()
	ctx := context.Background()

	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == firstServoID {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
		}
	}
	if servo == nil {
		return false, nil
	}

	origin, err := servo.Position(ctx)
	if err != nil {
		return false, fmt.Errorf("read position on %s: %w", arm.port, err)
	}
	if err := servo.Enable(ctx); err != nil {
		return false, fmt.Errorf("enable servo on %s: %w", arm.port, err)
	}

	fmt.Printf("\n  Wiggling arm on %s...\n", arm.port)
	const amount, moveMs = 30, 500
	for _, target := range []int{origin + amount, origin - amount, origin} {
		servo.SetPositionWithTime(ctx, target, moveMs)
		time.Sleep((moveMs + 100) * time.Millisecond)
	}
	servo.Disable(ctx)

	use := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Use the arm on %s as follower?", arm.port)).
				Description("The arm that just wiggled").
				Affirmative("Use it").
				Negative("Skip").
				Value(&use),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return use, nil
}

// calibrateArm records the range of motion while the user moves the
// limp arm by hand.
func calibrateArm(port string) (robot.Calibration, error) {
	fmt.Printf("Calibrating arm on %s\n\n", port)

	bus, servos, err := scan(port)
	if err != nil {
		return nil, fmt.Errorf("connect to arm: %w", err)
	}
	defer bus.Close()

	byID := make(map[int]*feetech.Servo, len(servos))
	for _, s := range servos {
		byID[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}
	ctx := context.Background()
	// Limp servos so the arm can be moved by hand
	for _, s := range byID {
		s.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	read := func() (map[robot.MotorName]int, error) {
		out := make(map[robot.MotorName]int, len(byID))
		for i, name := range robot.AllMotors() {
			pos, err := byID[firstServoID+i].Position(ctx)
			if err != nil {
				return nil, err
			}
			out[name] = pos
		}
		return out, nil
	}
	return recordRange(read)
}
