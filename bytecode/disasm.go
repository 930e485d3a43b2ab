package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the whole program:
// pools, top-level code, and every function body. It resolves pool indices
// and jump targets from the program's own tables; no semantics are
// re-derived.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; code length: %d\n", len(p.Code)))
	if len(p.Constants) > 0 {
		sb.WriteString("; constants:\n")
		for i, c := range p.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, constantRepr(c)))
		}
	}
	if len(p.Names) > 0 {
		sb.WriteString("; names:\n")
		for i, n := range p.Names {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, n))
		}
	}

	sb.WriteString("\n")
	p.disassembleCode(&sb, p.Code)

	for _, f := range p.Functions {
		sb.WriteString(fmt.Sprintf("\n; === %s(%s) ===\n", f.Name, strings.Join(f.Params, ", ")))
		p.disassembleCode(&sb, f.Code)
	}

	return sb.String()
}

func (p *Program) disassembleCode(sb *strings.Builder, code []int) {
	offset := 0
	for offset < len(code) {
		line, length := p.disassembleInstruction(code, offset)
		sb.WriteString(fmt.Sprintf("%4d  %s\n", offset, line))
		offset += length
	}
}

// disassembleInstruction formats one instruction and returns its length in
// code words. A malformed tail (operands past the end of code) is rendered
// rather than skipped so the listing stays honest about corrupt input.
func (p *Program) disassembleInstruction(code []int, offset int) (string, int) {
	op := Opcode(code[offset])
	info, known := GetOpcodeInfo(op)
	if !known {
		return info.Name, 1
	}

	operands := make([]int, 0, info.Operands)
	for i := 1; i <= info.Operands; i++ {
		if offset+i >= len(code) {
			return fmt.Sprintf("%-16s <truncated>", info.Name), len(code) - offset
		}
		operands = append(operands, code[offset+i])
	}

	text := fmt.Sprintf("%-16s", info.Name)
	switch op {
	case OpLoadConst:
		text += fmt.Sprintf(" %d (= %s)", operands[0], p.constantAt(operands[0]))
	case OpLoad, OpStore, OpDefFunction:
		text += fmt.Sprintf(" %d (= %s)", operands[0], p.nameAt(operands[0]))
	case OpJump, OpJumpIfFalse:
		text += fmt.Sprintf(" -> %d", operands[0])
	case OpForIter:
		text += fmt.Sprintf(" -> %d, var=%s", operands[0], p.nameAt(operands[1]))
	case OpCallFunction:
		text += fmt.Sprintf(" %d (= %s), argc=%d", operands[0], p.nameAt(operands[0]), operands[1])
	default:
		for _, arg := range operands {
			text += fmt.Sprintf(" %d", arg)
		}
	}
	return strings.TrimRight(text, " "), 1 + len(operands)
}

func (p *Program) constantAt(idx int) string {
	if idx < 0 || idx >= len(p.Constants) {
		return fmt.Sprintf("#%d?", idx)
	}
	return constantRepr(p.Constants[idx])
}

func (p *Program) nameAt(idx int) string {
	if idx < 0 || idx >= len(p.Names) {
		return fmt.Sprintf("#%d?", idx)
	}
	return p.Names[idx]
}

func constantRepr(v Value) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return FormatValue(v)
}
