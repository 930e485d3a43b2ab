// Package ir defines Quill's linear intermediate representation and the
// analyzer that lowers an AST into it. IR instructions reuse the bytecode
// opcode vocabulary plus the LABEL pseudo-instruction; branch targets are
// symbolic labels that the code generator later resolves to absolute
// offsets.
package ir

import (
	"fmt"
	"strings"

	"github.com/quill-lang/quill/bytecode"
)

// Label is a symbolic branch target. Labels are unique within one
// instruction sequence and never referenced across function boundaries.
type Label string

// OperandKind discriminates the operand variants.
type OperandKind int

const (
	// OperandLiteral is a constant value destined for the constant pool.
	OperandLiteral OperandKind = iota
	// OperandName is a variable or function name destined for the name pool.
	OperandName
	// OperandLabel is a symbolic branch target.
	OperandLabel
	// OperandCount is a plain integer (argument or element count).
	OperandCount
)

// Operand is one instruction argument: a literal, a name, a label, or a
// count.
type Operand struct {
	Kind    OperandKind
	Literal bytecode.Value
	Name    string
	Label   Label
	Count   int
}

// Lit builds a literal operand.
func Lit(v bytecode.Value) Operand { return Operand{Kind: OperandLiteral, Literal: v} }

// Name builds a name operand.
func Name(s string) Operand { return Operand{Kind: OperandName, Name: s} }

// LabelRef builds a label operand.
func LabelRef(l Label) Operand { return Operand{Kind: OperandLabel, Label: l} }

// Count builds a count operand.
func Count(n int) Operand { return Operand{Kind: OperandCount, Count: n} }

// String renders an operand for IR dumps.
func (o Operand) String() string {
	switch o.Kind {
	case OperandLiteral:
		if s, ok := o.Literal.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return bytecode.FormatValue(o.Literal)
	case OperandName:
		return o.Name
	case OperandLabel:
		return string(o.Label)
	case OperandCount:
		return fmt.Sprintf("%d", o.Count)
	default:
		return fmt.Sprintf("operand(%d)", o.Kind)
	}
}

// Instruction is one IR instruction: an opcode tag plus ordered operands.
// Instructions are immutable once emitted.
type Instruction struct {
	Op   bytecode.Opcode
	Args []Operand
}

// String renders an instruction for IR dumps.
func (in Instruction) String() string {
	if len(in.Args) == 0 {
		return in.Op.String()
	}
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		parts[i] = a.String()
	}
	return in.Op.String() + " " + strings.Join(parts, ", ")
}

// Function is the IR for one function body: its own instruction sequence
// plus the ordered parameter names.
type Function struct {
	Name   string
	Params []string
	Instrs []Instruction
}

// Program is the analyzer's output: top-level instructions plus the function
// table in definition order.
type Program struct {
	Instrs    []Instruction
	Functions []*Function
}

// Function returns the IR function with the given name, or nil.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// addFunction records a lowered function body. A redefinition replaces the
// earlier entry in place, preserving first-definition order.
func (p *Program) addFunction(f *Function) {
	for i, existing := range p.Functions {
		if existing.Name == f.Name {
			p.Functions[i] = f
			return
		}
	}
	p.Functions = append(p.Functions, f)
}

// Dump renders the whole program as text, one instruction per line.
func (p *Program) Dump() string {
	var sb strings.Builder
	sb.WriteString("=== top level ===\n")
	for _, in := range p.Instrs {
		sb.WriteString(in.String())
		sb.WriteString("\n")
	}
	for _, f := range p.Functions {
		sb.WriteString(fmt.Sprintf("\n=== func %s(%s) ===\n", f.Name, strings.Join(f.Params, ", ")))
		for _, in := range f.Instrs {
			sb.WriteString(in.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Builder accumulates one instruction sequence (top level or one function
// body). Each compiled unit gets its own builder; function lowering opens a
// fresh one instead of redirecting shared state.
type Builder struct {
	instrs []Instruction
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{instrs: make([]Instruction, 0, 32)}
}

// Emit appends one instruction.
func (b *Builder) Emit(op bytecode.Opcode, args ...Operand) {
	b.instrs = append(b.instrs, Instruction{Op: op, Args: args})
}

// Instructions returns the accumulated sequence.
func (b *Builder) Instructions() []Instruction {
	return b.instrs
}

// endsWithReturn reports whether the last emitted instruction halts the
// frame. Used to decide whether a function body needs an implicit
// "return null".
func (b *Builder) endsWithReturn() bool {
	if len(b.instrs) == 0 {
		return false
	}
	return b.instrs[len(b.instrs)-1].Op == bytecode.OpReturnValue
}
