package remedy

import (
	"fmt"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// Action types accepted in Spec.Type.
const (
	TypeCommand     = "command"
	TypeRestartUnit = "restart-unit"
	TypeLog         = "log"
)

// Spec describes an operator-configured remediation.
type Spec struct {
	Kind    string
	Type    string
	Command []string
	Unit    string
	Timeout time.Duration
}

// Build returns the action described by s.
func (s Spec) Build() (Action, error) {
	switch s.Type {
	case TypeCommand, "":
		if len(s.Command) == 0 {
			return nil, fmt.Errorf("remediation %q: command is required", s.Kind)
		}
		return Command(s.Command, s.Timeout), nil
	case TypeRestartUnit:
		if s.Unit == "" {
			return nil, fmt.Errorf("remediation %q: unit is required", s.Kind)
		}
		return RestartUnit(s.Unit, s.Timeout), nil
	case TypeLog:
		return Log(), nil
	default:
		return nil, fmt.Errorf("remediation %q: unknown type %q", s.Kind, s.Type)
	}
}

// FromSpecs builds a registry from specs. Later specs for the same kind
// replace earlier ones.
func FromSpecs(specs []Spec, timeout time.Duration) (*Registry, error) {
	r := NewRegistry()
	r.Timeout = timeout
	for _, s := range specs {
		action, err := s.Build()
		if err != nil {
			return nil, err
		}
		if err := r.Register(fault.Kind(s.Kind), action); err != nil {
			return nil, err
		}
	}
	return r, nil
}
