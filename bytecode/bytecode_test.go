package bytecode

import (
	"math"
	"strings"
	"testing"
)

func TestOpcodeNumbering(t *testing.T) {
	// The numbering is part of the wire format and must never drift.
	tests := []struct {
		op   Opcode
		num  int
		name string
	}{
		{OpLoadConst, 1, "LOAD_CONST"},
		{OpLoad, 2, "LOAD"},
		{OpStore, 3, "STORE"},
		{OpPop, 4, "POP"},
		{OpAdd, 5, "ADD"},
		{OpMod, 9, "MOD"},
		{OpNot, 12, "NOT"},
		{OpOr, 20, "OR"},
		{OpJump, 21, "JUMP"},
		{OpJumpIfFalse, 22, "JUMP_IF_FALSE"},
		{OpLabel, 23, "LABEL"},
		{OpPrint, 24, "PRINT"},
		{OpCallFunction, 25, "CALL_FUNCTION"},
		{OpReturnValue, 26, "RETURN_VALUE"},
		{OpNop, 27, "NOP"},
		{OpBuildList, 28, "BUILD_LIST"},
		{OpSetupLoop, 29, "SETUP_LOOP"},
		{OpForIter, 30, "FOR_ITER"},
		{OpDefFunction, 31, "DEF_FUNCTION"},
	}
	for _, tt := range tests {
		if int(tt.op) != tt.num {
			t.Errorf("%s = %d, want %d", tt.name, int(tt.op), tt.num)
		}
		if tt.op.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.op.String(), tt.name)
		}
	}
}

func TestOpcodeOperandCounts(t *testing.T) {
	tests := []struct {
		op Opcode
		n  int
	}{
		{OpLoadConst, 1},
		{OpAdd, 0},
		{OpJump, 1},
		{OpPrint, 1},
		{OpCallFunction, 2},
		{OpForIter, 2},
		{OpReturnValue, 0},
	}
	for _, tt := range tests {
		if got := tt.op.Operands(); got != tt.n {
			t.Errorf("%s.Operands() = %d, want %d", tt.op, got, tt.n)
		}
	}
	if Opcode(99).Valid() {
		t.Error("Opcode(99) should not be valid")
	}
}

func TestConstantPoolDedup(t *testing.T) {
	p := NewProgram()
	if i := p.AddConstant(int64(1)); i != 0 {
		t.Errorf("first add = %d, want 0", i)
	}
	if i := p.AddConstant(int64(1)); i != 0 {
		t.Errorf("duplicate add = %d, want 0", i)
	}
	// int and float constants never share a slot even when numerically equal
	if i := p.AddConstant(float64(1)); i != 1 {
		t.Errorf("float64(1) = %d, want 1", i)
	}
	if i := p.AddConstant("1"); i != 2 {
		t.Errorf("string \"1\" = %d, want 2", i)
	}
	if len(p.Constants) != 3 {
		t.Errorf("pool size = %d, want 3", len(p.Constants))
	}

	idx, err := p.ConstantIndex(float64(1))
	if err != nil || idx != 1 {
		t.Errorf("ConstantIndex(float64(1)) = %d, %v", idx, err)
	}
	if _, err := p.ConstantIndex(int64(999)); err == nil {
		t.Error("expected error for uncollected constant")
	}
}

func TestConstantPoolNaN(t *testing.T) {
	p := NewProgram()
	a := p.AddConstant(math.NaN())
	b := p.AddConstant(math.NaN())
	if a != b {
		t.Errorf("NaN pooled twice: %d and %d", a, b)
	}
	idx, err := p.ConstantIndex(math.NaN())
	if err != nil {
		t.Fatalf("ConstantIndex(NaN): %v", err)
	}
	if idx != a {
		t.Errorf("ConstantIndex(NaN) = %d, want %d", idx, a)
	}
}

func TestNamePoolDedup(t *testing.T) {
	p := NewProgram()
	p.AddName("x")
	p.AddName("y")
	if i := p.AddName("x"); i != 0 {
		t.Errorf("duplicate name = %d, want 0", i)
	}
	if _, err := p.NameIndex("z"); err == nil {
		t.Error("expected error for uncollected name")
	}
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{int64(1), int64(1), true},
		{int64(1), float64(1), false},
		{"a", "a", true},
		{nil, nil, true},
		{[]Value{int64(1), "x"}, []Value{int64(1), "x"}, true},
		{[]Value{int64(1)}, []Value{int64(2)}, false},
		{[]Value{}, int64(0), false},
	}
	for _, tt := range tests {
		if got := ValueEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("ValueEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{int64(-3), "-3"},
		{float64(3.5), "3.5"},
		{"plain", "plain"},
		{[]Value{int64(1), "a", nil}, "[1, a, null]"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.v); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestDisassemble(t *testing.T) {
	p := NewProgram()
	ci := p.AddConstant(int64(10))
	ni := p.AddName("x")
	p.Code = []int{
		int(OpLoadConst), ci,
		int(OpStore), ni,
		int(OpLoad), ni,
		int(OpJumpIfFalse), 10,
		int(OpNop),
	}
	out := p.Disassemble()
	for _, want := range []string{"LOAD_CONST", "= 10", "STORE", "JUMP_IF_FALSE", "-> 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	p := NewProgram()
	p.AddConstant(int64(7))
	p.AddConstant(float64(2.5))
	p.AddConstant("s")
	p.AddConstant(nil)
	p.AddConstant(true)
	p.AddName("f")
	p.Code = []int{int(OpLoadConst), 0, int(OpReturnValue)}
	p.Functions = append(p.Functions, &Function{
		Name:   "f",
		Params: []string{"a", "b"},
		Code:   []int{int(OpLoad), 0, int(OpReturnValue)},
	})

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(got.Constants) != len(p.Constants) {
		t.Fatalf("constants = %d, want %d", len(got.Constants), len(p.Constants))
	}
	// Integer constants must come back as int64, not a unsigned or float type.
	if v, ok := got.Constants[0].(int64); !ok || v != 7 {
		t.Errorf("constant 0 = %#v, want int64(7)", got.Constants[0])
	}
	if v, ok := got.Constants[1].(float64); !ok || v != 2.5 {
		t.Errorf("constant 1 = %#v, want float64(2.5)", got.Constants[1])
	}
	for i, c := range p.Code {
		if got.Code[i] != c {
			t.Fatalf("code[%d] = %d, want %d", i, got.Code[i], c)
		}
	}
	f := got.Function("f")
	if f == nil {
		t.Fatal("function f lost in round trip")
	}
	if len(f.Params) != 2 || f.Params[0] != "a" {
		t.Errorf("params = %v", f.Params)
	}
}

func TestWireDeterministic(t *testing.T) {
	p := NewProgram()
	p.AddConstant(int64(1))
	p.AddName("x")
	p.Code = []int{int(OpLoadConst), 0, int(OpStore), 0}

	a, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor at all")); err == nil {
		t.Error("expected error for garbage input")
	}
}
