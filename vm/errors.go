package vm

import "errors"

// Runtime error categories. Execute wraps these with the offending name,
// opcode, or offset, so callers match with errors.Is.
var (
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrNotIterable       = errors.New("value is not iterable")
	ErrTruncatedCode     = errors.New("truncated instruction")
	ErrBadOperand        = errors.New("operand index out of range")
	ErrUnsupportedTypes  = errors.New("unsupported operand types")
)
