// Package vm executes compiled bytecode. The interpreter is a single
// switch-dispatch loop over a shared operand stack and an explicit,
// heap-allocated frame stack, so call depth is bounded only by memory and
// never by the Go goroutine stack.
package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/quill-lang/quill/bytecode"
)

// frame is one activation record. Each frame owns its environment and its
// own stack of live loop iterators; the operand stack is shared across
// frames, which is what lets RETURN_VALUE hand a result to the caller by
// leaving it on top.
type frame struct {
	code  []int
	pc    int
	env   *Env
	iters []*iterator
}

type iterator struct {
	items []bytecode.Value
	next  int
}

type VM struct {
	program *bytecode.Program
	stack   []bytecode.Value
	frames  []*frame
	out     io.Writer
	global  *Env
	result  bytecode.Value
}

type Option func(*VM)

// WithOutput redirects PRINT. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

func New(opts ...Option) *VM {
	vm := &VM{out: os.Stdout, global: NewEnv(nil)}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Global reports the value of a top-level variable after Execute returns.
func (vm *VM) Global(name string) (bytecode.Value, bool) {
	return vm.global.Lookup(name)
}

// Execute runs a program to completion and returns the value of the last
// executed top-level RETURN_VALUE, or nil when the program simply falls off
// the end of its code.
func (vm *VM) Execute(p *bytecode.Program) (bytecode.Value, error) {
	vm.program = p
	vm.stack = vm.stack[:0]
	vm.result = nil
	vm.frames = []*frame{{code: p.Code, env: vm.global}}

	for len(vm.frames) > 0 {
		f := vm.frames[len(vm.frames)-1]
		if f.pc >= len(f.code) {
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) > 0 {
				// Function bodies always end in RETURN_VALUE; running off
				// the end of a non-base frame means the code is corrupt.
				return nil, fmt.Errorf("vm: %w: function body ended without return", ErrTruncatedCode)
			}
			continue
		}
		if err := vm.step(f); err != nil {
			return nil, err
		}
	}
	return vm.result, nil
}

func (vm *VM) step(f *frame) error {
	op := bytecode.Opcode(f.code[f.pc])
	f.pc++

	switch op {
	case bytecode.OpLoadConst:
		idx, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(vm.program.Constants) {
			return fmt.Errorf("vm: %w: constant %d", ErrBadOperand, idx)
		}
		vm.push(vm.program.Constants[idx])

	case bytecode.OpLoad:
		name, err := vm.fetchName(f, op)
		if err != nil {
			return err
		}
		v, ok := f.env.Lookup(name)
		if !ok {
			return fmt.Errorf("vm: %w: %s", ErrUndefinedVariable, name)
		}
		vm.push(v)

	case bytecode.OpStore:
		name, err := vm.fetchName(f, op)
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		f.env.Define(name, v)

	case bytecode.OpPop:
		if _, err := vm.pop(); err != nil {
			return err
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		right, err := vm.pop()
		if err != nil {
			return err
		}
		left, err := vm.pop()
		if err != nil {
			return err
		}
		v, err := arith(op, left, right)
		if err != nil {
			return err
		}
		vm.push(v)

	case bytecode.OpNegate, bytecode.OpPos:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		r, err := unaryNumeric(op, v)
		if err != nil {
			return err
		}
		vm.push(r)

	case bytecode.OpNot:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.push(!Truthy(v))

	case bytecode.OpEq, bytecode.OpNeq:
		right, err := vm.pop()
		if err != nil {
			return err
		}
		left, err := vm.pop()
		if err != nil {
			return err
		}
		eq := equal(left, right)
		if op == bytecode.OpNeq {
			eq = !eq
		}
		vm.push(eq)

	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		right, err := vm.pop()
		if err != nil {
			return err
		}
		left, err := vm.pop()
		if err != nil {
			return err
		}
		r, err := compare(op, left, right)
		if err != nil {
			return err
		}
		vm.push(r)

	case bytecode.OpAnd:
		right, err := vm.pop()
		if err != nil {
			return err
		}
		left, err := vm.pop()
		if err != nil {
			return err
		}
		// Both operands are already evaluated; only the selection follows
		// truthiness, and the chosen operand keeps its original value.
		if Truthy(left) {
			vm.push(right)
		} else {
			vm.push(left)
		}

	case bytecode.OpOr:
		right, err := vm.pop()
		if err != nil {
			return err
		}
		left, err := vm.pop()
		if err != nil {
			return err
		}
		if Truthy(left) {
			vm.push(left)
		} else {
			vm.push(right)
		}

	case bytecode.OpJump:
		target, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		f.pc = target

	case bytecode.OpJumpIfFalse:
		target, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if !Truthy(v) {
			f.pc = target
		}

	case bytecode.OpPrint:
		n, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		args, err := vm.popN(n)
		if err != nil {
			return err
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = bytecode.FormatValue(a)
		}
		fmt.Fprintln(vm.out, strings.Join(parts, " "))

	case bytecode.OpCallFunction:
		name, err := vm.fetchName(f, op)
		if err != nil {
			return err
		}
		argc, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		fn, ok := f.env.LookupFunc(name)
		if !ok {
			return fmt.Errorf("vm: %w: %s", ErrUndefinedFunction, name)
		}
		args, err := vm.popN(argc)
		if err != nil {
			return err
		}
		env := NewEnv(f.env)
		// Missing trailing arguments bind to null; extras are discarded.
		for i, p := range fn.Params {
			if i < len(args) {
				env.Define(p, args[i])
			} else {
				env.Define(p, nil)
			}
		}
		vm.frames = append(vm.frames, &frame{code: fn.Code, env: env})

	case bytecode.OpReturnValue:
		// An empty operand stack returns null rather than underflowing.
		var v bytecode.Value
		if len(vm.stack) > 0 {
			v = vm.stack[len(vm.stack)-1]
			vm.stack = vm.stack[:len(vm.stack)-1]
		}
		vm.frames = vm.frames[:len(vm.frames)-1]
		if len(vm.frames) == 0 {
			vm.result = v
		} else {
			vm.push(v)
		}

	case bytecode.OpNop:
		// pass

	case bytecode.OpBuildList:
		n, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		items, err := vm.popN(n)
		if err != nil {
			return err
		}
		vm.push(items)

	case bytecode.OpSetupLoop:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		it, err := newIterator(v)
		if err != nil {
			return err
		}
		f.iters = append(f.iters, it)

	case bytecode.OpForIter:
		target, err := vm.fetch(f, op)
		if err != nil {
			return err
		}
		name, err := vm.fetchName(f, op)
		if err != nil {
			return err
		}
		if len(f.iters) == 0 {
			return fmt.Errorf("vm: FOR_ITER without active loop")
		}
		it := f.iters[len(f.iters)-1]
		if it.next >= len(it.items) {
			f.iters = f.iters[:len(f.iters)-1]
			f.pc = target
			break
		}
		f.env.Define(name, it.items[it.next])
		it.next++

	case bytecode.OpDefFunction:
		name, err := vm.fetchName(f, op)
		if err != nil {
			return err
		}
		// A name with no compiled body is skipped; calling it later still
		// fails with UndefinedFunction.
		if fn := vm.program.Function(name); fn != nil {
			f.env.DefineFunc(fn)
		}

	default:
		return fmt.Errorf("vm: %w: %d at offset %d", ErrUnknownOpcode, int(op), f.pc-1)
	}
	return nil
}

// fetch reads one operand word and advances pc.
func (vm *VM) fetch(f *frame, op bytecode.Opcode) (int, error) {
	if f.pc >= len(f.code) {
		return 0, fmt.Errorf("vm: %w: %s at offset %d", ErrTruncatedCode, op, f.pc-1)
	}
	v := f.code[f.pc]
	f.pc++
	return v, nil
}

func (vm *VM) fetchName(f *frame, op bytecode.Opcode) (string, error) {
	idx, err := vm.fetch(f, op)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(vm.program.Names) {
		return "", fmt.Errorf("vm: %w: name %d", ErrBadOperand, idx)
	}
	return vm.program.Names[idx], nil
}

func (vm *VM) push(v bytecode.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (bytecode.Value, error) {
	if len(vm.stack) == 0 {
		return nil, fmt.Errorf("vm: %w", ErrStackUnderflow)
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// popN removes n values and returns them in push order.
func (vm *VM) popN(n int) ([]bytecode.Value, error) {
	if n < 0 || n > len(vm.stack) {
		return nil, fmt.Errorf("vm: %w: need %d values, have %d", ErrStackUnderflow, n, len(vm.stack))
	}
	out := make([]bytecode.Value, n)
	copy(out, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}

// Truthy follows the source language's rules: null, false, numeric zero,
// the empty string and the empty list are false, everything else is true.
func Truthy(v bytecode.Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []bytecode.Value:
		return len(x) > 0
	default:
		return true
	}
}

func newIterator(v bytecode.Value) (*iterator, error) {
	switch x := v.(type) {
	case []bytecode.Value:
		// Snapshot the list so mutations inside the loop body cannot
		// disturb the traversal.
		items := make([]bytecode.Value, len(x))
		copy(items, x)
		return &iterator{items: items}, nil
	case string:
		items := make([]bytecode.Value, 0, len(x))
		for _, r := range x {
			items = append(items, string(r))
		}
		return &iterator{items: items}, nil
	default:
		return nil, fmt.Errorf("vm: %w: %s", ErrNotIterable, typeName(v))
	}
}

func arith(op bytecode.Opcode, left, right bytecode.Value) (bytecode.Value, error) {
	// Integer arithmetic stays integral; one float operand promotes both.
	if l, r, ok := bothInts(left, right); ok {
		switch op {
		case bytecode.OpAdd:
			return l + r, nil
		case bytecode.OpSub:
			return l - r, nil
		case bytecode.OpMul:
			return l * r, nil
		case bytecode.OpDiv:
			if r == 0 {
				return nil, fmt.Errorf("vm: %w", ErrDivisionByZero)
			}
			return floorDiv(l, r), nil
		case bytecode.OpMod:
			if r == 0 {
				return nil, fmt.Errorf("vm: %w", ErrDivisionByZero)
			}
			return floorMod(l, r), nil
		}
	}
	if l, r, ok := bothFloats(left, right); ok {
		switch op {
		case bytecode.OpAdd:
			return l + r, nil
		case bytecode.OpSub:
			return l - r, nil
		case bytecode.OpMul:
			return l * r, nil
		case bytecode.OpDiv:
			if r == 0 {
				return nil, fmt.Errorf("vm: %w", ErrDivisionByZero)
			}
			return l / r, nil
		case bytecode.OpMod:
			if r == 0 {
				return nil, fmt.Errorf("vm: %w", ErrDivisionByZero)
			}
			m := math.Mod(l, r)
			if m != 0 && (m < 0) != (r < 0) {
				m += r
			}
			return m, nil
		}
	}
	if op == bytecode.OpAdd {
		if l, ok := left.(string); ok {
			if r, ok := right.(string); ok {
				return l + r, nil
			}
		}
		if l, ok := left.([]bytecode.Value); ok {
			if r, ok := right.([]bytecode.Value); ok {
				out := make([]bytecode.Value, 0, len(l)+len(r))
				out = append(out, l...)
				out = append(out, r...)
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("vm: %w: %s %s %s",
		ErrUnsupportedTypes, typeName(left), op, typeName(right))
}

func unaryNumeric(op bytecode.Opcode, v bytecode.Value) (bytecode.Value, error) {
	switch x := v.(type) {
	case int64:
		if op == bytecode.OpNegate {
			return -x, nil
		}
		return x, nil
	case float64:
		if op == bytecode.OpNegate {
			return -x, nil
		}
		return x, nil
	default:
		return nil, fmt.Errorf("vm: %w: %s %s", ErrUnsupportedTypes, op, typeName(v))
	}
}

// equal compares across the int/float divide, so 1 == 1.0 holds.
func equal(left, right bytecode.Value) bool {
	if l, r, ok := bothFloats(left, right); ok {
		return l == r
	}
	return bytecode.ValueEqual(left, right)
}

func compare(op bytecode.Opcode, left, right bytecode.Value) (bool, error) {
	var cmp int
	if l, r, ok := bothFloats(left, right); ok {
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	} else if l, ok := left.(string); ok {
		r, rok := right.(string)
		if !rok {
			return false, fmt.Errorf("vm: %w: %s %s %s",
				ErrUnsupportedTypes, typeName(left), op, typeName(right))
		}
		cmp = strings.Compare(l, r)
	} else {
		return false, fmt.Errorf("vm: %w: %s %s %s",
			ErrUnsupportedTypes, typeName(left), op, typeName(right))
	}

	switch op {
	case bytecode.OpLt:
		return cmp < 0, nil
	case bytecode.OpLe:
		return cmp <= 0, nil
	case bytecode.OpGt:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func bothInts(a, b bytecode.Value) (int64, int64, bool) {
	l, lok := a.(int64)
	r, rok := b.(int64)
	return l, r, lok && rok
}

// bothFloats succeeds only when both sides are numeric.
func bothFloats(a, b bytecode.Value) (float64, float64, bool) {
	l, lok := asFloat(a)
	r, rok := asFloat(b)
	return l, r, lok && rok
}

func asFloat(v bytecode.Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// floorDiv rounds toward negative infinity, so -7 / 2 is -4.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod's result takes the sign of the divisor.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func typeName(v bytecode.Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []bytecode.Value:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
