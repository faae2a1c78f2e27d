package types

import (
	"errors"
	"fmt"
	"strconv"
)

// Error kinds shared by validation, identifier derivation and the orchestrator
var (
	// ErrParameterOutOfRange is returned when a numeric parameter violates its bound
	ErrParameterOutOfRange = errors.New("parameter out of range")

	// ErrEmptyParameter is returned when a parameter is required but not set
	ErrEmptyParameter = errors.New("empty parameter")

	// ErrNoEffectiveParameter is returned when a configuration would not shape anything
	ErrNoEffectiveParameter = errors.New("there is no effective net emulation parameter")

	// ErrInvalidNetworkSpec is returned when a network string is not a valid CIDR or address
	ErrInvalidNetworkSpec = errors.New("invalid network specification")

	// ErrUnknownDirection is returned when a direction is neither outgoing nor incoming
	ErrUnknownDirection = errors.New("unknown traffic direction")

	// ErrInterfaceNotFound is returned when a named network interface does not exist
	ErrInterfaceNotFound = errors.New("network interface not found")

	// ErrInvalidRate is returned when a rate string cannot be parsed
	ErrInvalidRate = errors.New("invalid rate format")
)

// RangeError describes a parameter that violated one of its bounds
type RangeError struct {
	Field string
	Bound float64
	Value float64
	// Upper is true when Bound is the maximum, false when it is the minimum
	Upper bool
	// Exclusive means the bound itself is not an accepted value
	Exclusive bool
}

func (e *RangeError) Error() string {
	op := ">="
	word := "low"
	if e.Upper {
		op, word = "<=", "high"
	}
	if e.Exclusive {
		op = op[:1]
	}
	return fmt.Sprintf("%s is too %s: expected%s%s, value=%s", e.Field, word, op, formatFloat(e.Bound), formatFloat(e.Value))
}

// Unwrap lets errors.Is match ErrParameterOutOfRange
func (e *RangeError) Unwrap() error {
	return ErrParameterOutOfRange
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
