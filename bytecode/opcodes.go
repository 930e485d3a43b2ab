package bytecode

import "fmt"

// Opcode identifies a bytecode instruction. Emitted code is a flat []int of
// opcodes interleaved with their integer operands.
type Opcode int

const (
	// Constants and variables
	OpLoadConst Opcode = 1 // Push constant: LOAD_CONST <const index>
	OpLoad      Opcode = 2 // Push variable: LOAD <name index>
	OpStore     Opcode = 3 // Pop and store: STORE <name index>

	// Stack manipulation
	OpPop Opcode = 4 // Pop and discard top of stack

	// Arithmetic
	OpAdd Opcode = 5 // Pop two, push sum
	OpSub Opcode = 6 // Pop two, push difference
	OpMul Opcode = 7 // Pop two, push product
	OpDiv Opcode = 8 // Pop two, push quotient (floored for int/int)
	OpMod Opcode = 9 // Pop two, push remainder

	// Unary
	OpNegate Opcode = 10 // Arithmetic negation of top of stack
	OpPos    Opcode = 11 // Arithmetic identity (numeric check)
	OpNot    Opcode = 12 // Logical negation

	// Comparison and logic
	OpEq  Opcode = 13
	OpNeq Opcode = 14
	OpLt  Opcode = 15
	OpGt  Opcode = 16
	OpLe  Opcode = 17
	OpGe  Opcode = 18
	OpAnd Opcode = 19
	OpOr  Opcode = 20

	// Control flow
	OpJump        Opcode = 21 // Unconditional jump: JUMP <absolute offset>
	OpJumpIfFalse Opcode = 22 // Pop condition, jump on falsy: JUMP_IF_FALSE <absolute offset>

	// OpLabel is a pseudo-instruction: it marks a branch target in IR and is
	// consumed entirely by the code generator. It never appears in emitted
	// bytecode.
	OpLabel Opcode = 23

	// Effects, calls, structures
	OpPrint        Opcode = 24 // Pop n values, write space-separated: PRINT <argc>
	OpCallFunction Opcode = 25 // Call by name: CALL_FUNCTION <name index> <argc>
	OpReturnValue  Opcode = 26 // Pop return value (null if empty), halt frame
	OpNop          Opcode = 27 // No operation
	OpBuildList    Opcode = 28 // Pop n elements, push list: BUILD_LIST <count>
	OpSetupLoop    Opcode = 29 // Pop iterable, open iteration state
	OpForIter      Opcode = 30 // Advance iteration: FOR_ITER <exit offset> <name index>
	OpDefFunction  Opcode = 31 // Install function object: DEF_FUNCTION <name index>
)

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name     string // Human-readable name
	Operands int    // Number of integer operands following the opcode
}

// opcodeInfoTable is the single source of truth for opcode names and operand
// arity. The code generator's sizing and emission passes, the disassembler,
// and the VM's operand decoding all consult this table; a divergence between
// any two of them would corrupt every downstream jump target.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpLoadConst:    {"LOAD_CONST", 1},
	OpLoad:         {"LOAD", 1},
	OpStore:        {"STORE", 1},
	OpPop:          {"POP", 0},
	OpAdd:          {"ADD", 0},
	OpSub:          {"SUB", 0},
	OpMul:          {"MUL", 0},
	OpDiv:          {"DIV", 0},
	OpMod:          {"MOD", 0},
	OpNegate:       {"NEGATE", 0},
	OpPos:          {"POS", 0},
	OpNot:          {"NOT", 0},
	OpEq:           {"EQ", 0},
	OpNeq:          {"NEQ", 0},
	OpLt:           {"LT", 0},
	OpGt:           {"GT", 0},
	OpLe:           {"LE", 0},
	OpGe:           {"GE", 0},
	OpAnd:          {"AND", 0},
	OpOr:           {"OR", 0},
	OpJump:         {"JUMP", 1},
	OpJumpIfFalse:  {"JUMP_IF_FALSE", 1},
	OpLabel:        {"LABEL", 1},
	OpPrint:        {"PRINT", 1},
	OpCallFunction: {"CALL_FUNCTION", 2},
	OpReturnValue:  {"RETURN_VALUE", 0},
	OpNop:          {"NOP", 0},
	OpBuildList:    {"BUILD_LIST", 1},
	OpSetupLoop:    {"SETUP_LOOP", 0},
	OpForIter:      {"FOR_ITER", 2},
	OpDefFunction:  {"DEF_FUNCTION", 1},
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get a
// synthetic name and zero operands.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", int(op))}, false
	}
	return info, true
}

// String returns the human-readable opcode name.
func (op Opcode) String() string {
	info, _ := GetOpcodeInfo(op)
	return info.Name
}

// Operands returns the number of integer operands for this opcode.
func (op Opcode) Operands() int {
	info, _ := GetOpcodeInfo(op)
	return info.Operands
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true for instructions that carry an absolute code offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse
}

// AllOpcodes returns every defined opcode. Useful for metadata tests.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	return ops
}
