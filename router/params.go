package router

import (
	"fmt"
	"strconv"

	"github.com/externref/macro/errors"
)

// ParamType identifies the target type a captured path variable is cast to
// before reaching the handler
type ParamType int

const (
	// ParamString leaves the captured value untouched
	ParamString ParamType = iota
	// ParamInt casts with base-10 integer parsing
	ParamInt
	// ParamFloat casts with 64-bit float parsing
	ParamFloat
	// ParamBool casts with strconv.ParseBool semantics
	ParamBool
)

// String returns the string representation of ParamType
func (pt ParamType) String() string {
	switch pt {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseParamType resolves a type name from configuration to a ParamType
func ParseParamType(name string) (ParamType, error) {
	switch name {
	case "string":
		return ParamString, nil
	case "int":
		return ParamInt, nil
	case "float":
		return ParamFloat, nil
	case "bool":
		return ParamBool, nil
	default:
		return ParamString, errors.WrapInvalid(errors.ErrInvalidParamType, "Router", "ParseParamType",
			fmt.Sprintf("unknown parameter type %q", name))
	}
}

// cast converts a captured path segment to the target type
func (pt ParamType) cast(raw string) (any, error) {
	switch pt {
	case ParamString:
		return raw, nil
	case ParamInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCastFailed, "Router", "cast", "int conversion")
		}
		return n, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCastFailed, "Router", "cast", "float conversion")
		}
		return f, nil
	case ParamBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCastFailed, "Router", "cast", "bool conversion")
		}
		return b, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidParamType, "Router", "cast",
			fmt.Sprintf("unknown parameter type %d", pt))
	}
}

// Params holds the path variables captured for one dispatched request, after
// type casting. Variables without a declared type are plain strings.
type Params map[string]any

// Get returns the raw value for a path variable and whether it was captured
func (p Params) Get(name string) (any, bool) {
	value, ok := p[name]
	return value, ok
}

// String returns a string-typed path variable, or "" when absent or not a
// string
func (p Params) String(name string) string {
	value, _ := p[name].(string)
	return value
}

// Int returns an int-typed path variable, or 0 when absent or not an int
func (p Params) Int(name string) int {
	value, _ := p[name].(int)
	return value
}

// Float returns a float-typed path variable, or 0 when absent or not a float
func (p Params) Float(name string) float64 {
	value, _ := p[name].(float64)
	return value
}

// Bool returns a bool-typed path variable, or false when absent or not a bool
func (p Params) Bool(name string) bool {
	value, _ := p[name].(bool)
	return value
}
