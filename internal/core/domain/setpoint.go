package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidSetpoint = errors.New("invalid power setpoint")

// SetPowerRequest overrides the simulated active power (kW, negative = export).
type SetPowerRequest struct {
	ActorRequestMixIn
	Power  float64
	Source string
}

type SetPowerResponse struct {
	ActorResponseMixIn
	Power float64
}

// ParseSetpoint parses an operator supplied power value in kW.
func ParseSetpoint(text string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSetpoint, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidSetpoint, text)
	}
	return value, nil
}
