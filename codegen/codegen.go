// Package codegen turns IR into executable bytecode. Generation is a pure
// transformation: constants and names are packed into deduplicated pools,
// and symbolic labels are resolved to absolute offsets with a two-pass walk
// over each instruction sequence.
package codegen

import (
	"fmt"

	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/ir"
)

// Generate compiles an IR program to bytecode. It fails only on unknown IR
// opcodes or malformed operands; both are internal errors (the analyzer
// never produces them), not conditions a source program can trigger.
func Generate(p *ir.Program) (*bytecode.Program, error) {
	g := &generator{out: bytecode.NewProgram()}

	// Resource collection pass over every sequence, so that pool indices
	// are stable before any code is emitted.
	g.collect(p.Instrs)
	for _, f := range p.Functions {
		g.collect(f.Instrs)
	}

	code, err := g.generateCode(p.Instrs)
	if err != nil {
		return nil, err
	}
	g.out.Code = code

	for _, f := range p.Functions {
		fcode, err := g.generateCode(f.Instrs)
		if err != nil {
			return nil, fmt.Errorf("codegen: function %s: %w", f.Name, err)
		}
		g.out.Functions = append(g.out.Functions, &bytecode.Function{
			Name:   f.Name,
			Params: f.Params,
			Code:   fcode,
		})
	}

	return g.out, nil
}

type generator struct {
	out *bytecode.Program
}

// collect scans one instruction sequence and pools every literal and name
// operand in first-seen order.
func (g *generator) collect(instrs []ir.Instruction) {
	for _, in := range instrs {
		for _, arg := range in.Args {
			switch arg.Kind {
			case ir.OperandLiteral:
				g.out.AddConstant(arg.Literal)
			case ir.OperandName:
				g.out.AddName(arg.Name)
			}
		}
	}
}

// generateCode lowers one instruction sequence to flat code. The sizing
// pass and the emission pass share the opcode arity table; labels occupy no
// space and record the running offset at their position.
func (g *generator) generateCode(instrs []ir.Instruction) ([]int, error) {
	labelOffsets := make(map[ir.Label]int)
	offset := 0
	for _, in := range instrs {
		if in.Op == bytecode.OpLabel {
			label, err := labelArg(in, 0)
			if err != nil {
				return nil, err
			}
			labelOffsets[label] = offset
			continue
		}
		if !in.Op.Valid() {
			return nil, fmt.Errorf("codegen: unknown IR opcode %d", int(in.Op))
		}
		offset += 1 + in.Op.Operands()
	}

	code := make([]int, 0, offset)
	for _, in := range instrs {
		if in.Op == bytecode.OpLabel {
			continue
		}
		emitted, err := g.emit(in, labelOffsets)
		if err != nil {
			return nil, err
		}
		code = append(code, emitted...)
	}

	if len(code) != offset {
		// The two passes disagreed about instruction sizes; every jump
		// target in this sequence is suspect.
		return nil, fmt.Errorf("codegen: sizing pass computed %d words, emission produced %d", offset, len(code))
	}
	return code, nil
}

func (g *generator) emit(in ir.Instruction, labels map[ir.Label]int) ([]int, error) {
	op := int(in.Op)

	switch in.Op {
	case bytecode.OpLoadConst:
		lit, err := litArg(in, 0)
		if err != nil {
			return nil, err
		}
		idx, err := g.out.ConstantIndex(lit)
		if err != nil {
			return nil, err
		}
		return []int{op, idx}, nil

	case bytecode.OpLoad, bytecode.OpStore, bytecode.OpDefFunction:
		name, err := nameArg(in, 0)
		if err != nil {
			return nil, err
		}
		idx, err := g.out.NameIndex(name)
		if err != nil {
			return nil, err
		}
		return []int{op, idx}, nil

	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		label, err := labelArg(in, 0)
		if err != nil {
			return nil, err
		}
		target, ok := labels[label]
		if !ok {
			return nil, fmt.Errorf("codegen: unresolved label %s", label)
		}
		return []int{op, target}, nil

	case bytecode.OpForIter:
		label, err := labelArg(in, 0)
		if err != nil {
			return nil, err
		}
		target, ok := labels[label]
		if !ok {
			return nil, fmt.Errorf("codegen: unresolved label %s", label)
		}
		name, err := nameArg(in, 1)
		if err != nil {
			return nil, err
		}
		idx, err := g.out.NameIndex(name)
		if err != nil {
			return nil, err
		}
		return []int{op, target, idx}, nil

	case bytecode.OpCallFunction:
		name, err := nameArg(in, 0)
		if err != nil {
			return nil, err
		}
		idx, err := g.out.NameIndex(name)
		if err != nil {
			return nil, err
		}
		argc, err := countArg(in, 1)
		if err != nil {
			return nil, err
		}
		return []int{op, idx, argc}, nil

	case bytecode.OpPrint, bytecode.OpBuildList:
		n, err := countArg(in, 0)
		if err != nil {
			return nil, err
		}
		return []int{op, n}, nil

	default:
		if !in.Op.Valid() {
			return nil, fmt.Errorf("codegen: unknown IR opcode %d", int(in.Op))
		}
		if in.Op.Operands() != 0 {
			return nil, fmt.Errorf("codegen: no emission rule for %s", in.Op)
		}
		return []int{op}, nil
	}
}

func litArg(in ir.Instruction, i int) (bytecode.Value, error) {
	if i >= len(in.Args) || in.Args[i].Kind != ir.OperandLiteral {
		return nil, fmt.Errorf("codegen: %s operand %d is not a literal", in.Op, i)
	}
	return in.Args[i].Literal, nil
}

func nameArg(in ir.Instruction, i int) (string, error) {
	if i >= len(in.Args) || in.Args[i].Kind != ir.OperandName {
		return "", fmt.Errorf("codegen: %s operand %d is not a name", in.Op, i)
	}
	return in.Args[i].Name, nil
}

func labelArg(in ir.Instruction, i int) (ir.Label, error) {
	if i >= len(in.Args) || in.Args[i].Kind != ir.OperandLabel {
		return "", fmt.Errorf("codegen: %s operand %d is not a label", in.Op, i)
	}
	return in.Args[i].Label, nil
}

func countArg(in ir.Instruction, i int) (int, error) {
	if i >= len(in.Args) || in.Args[i].Kind != ir.OperandCount {
		return 0, fmt.Errorf("codegen: %s operand %d is not a count", in.Op, i)
	}
	return in.Args[i].Count, nil
}
