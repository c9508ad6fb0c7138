// Package engine runs one processing unit: it binds models to the packed
// state, advances it tick by tick, and exchanges port data with peers.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"lpukit/internal/device"
	"lpukit/internal/input"
	"lpukit/internal/models"
	"lpukit/internal/port"
)

var (
	ErrNotStarted      = errors.New("unit not started")
	ErrAlreadyStarted  = errors.New("unit already started")
	ErrStopped         = errors.New("unit stopped")
	ErrSpikingMismatch = errors.New("model spiking flag does not match graph")
)

// State is the lifecycle stage of a unit.
type State int

const (
	Uninitialized State = iota
	// Primed units are started; the next tick only establishes initial
	// conditions.
	Primed
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Primed:
		return "primed"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	// DT is the time step in seconds.
	DT float64
	// ID names the unit in logs and debug outputs; a random UUID when empty.
	ID    string
	Debug bool
	// Strict makes an unknown model name fatal instead of omitting the group.
	Strict bool

	Input       input.Source
	InputWindow int

	// OutputKind selects the storage backend for state persistence; empty
	// disables it.
	OutputKind string
	OutputPath string
	// DebugDir receives the delay-buffer and synapse-state dumps in debug mode.
	DebugDir string

	Logger   *slog.Logger
	Registry *models.Registry
	Device   *device.Device
	// PortData is the transport-owned port array pair. When nil the unit
	// allocates its own, laid out by its selectors in declaration order.
	PortData *port.Data
	Ports    port.Mapper
	Workers  int
}
