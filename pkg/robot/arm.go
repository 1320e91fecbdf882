package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// BusTimeout bounds a single sync read or write on the servo bus.
const BusTimeout = 100 * time.Millisecond

// Arm is a calibrated follower arm on a feetech bus.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm opens the bus on port and groups the calibrated servos.
func NewArm(port string, cal Calibration) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  BusTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", port, err)
	}

	// Group the calibrated servos by ID
	return &Arm{
		bus:         bus,
		group:       feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...),
		calibration: cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Enable turns torque on so the arm holds commanded positions.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable lets the arm go limp.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadPositions returns every motor's position in [-100, 100].
func (a *Arm) ReadPositions(ctx context.Context) (map[MotorName]float64, error) {
	// Read raw positions using sync read
	raw, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	// Normalize each position
	positions := make(map[MotorName]float64, len(raw))
	for id, v := range raw {
		if name, cal, ok := a.calibration.ByID(id); ok {
			positions[name] = cal.Normalize(v)
		}
	}
	for _, name := range AllMotors() {
		if _, ok := positions[name]; !ok {
			return nil, fmt.Errorf("read positions: no reply from %s", name)
		}
	}
	return positions, nil
}

// WritePositions commands normalized targets in one sync write.
func (a *Arm) WritePositions(ctx context.Context, positions map[MotorName]float64) error {
	// Denormalize positions
	raw := make(feetech.PositionMap, len(positions))
	for name, norm := range positions {
		cal, ok := a.calibration[name]
		if !ok {
			return fmt.Errorf("write positions: unknown motor %s", name)
		}
		raw[cal.ID] = cal.Denormalize(norm)
	}
	// Write using sync write
	if err := a.group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}
