package vm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/quill-lang/quill/ast"
	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/codegen"
	"github.com/quill-lang/quill/ir"
	"github.com/quill-lang/quill/vm"
)

func compile(t *testing.T, stmts ...ast.Stmt) *bytecode.Program {
	t.Helper()
	irProg, err := ir.Analyze(&ast.Program{Stmts: stmts})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	p, err := codegen.Generate(irProg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return p
}

// run compiles and executes statements, returning the machine, its output,
// and the execution error.
func run(t *testing.T, stmts ...ast.Stmt) (*vm.VM, string, error) {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(vm.WithOutput(&out))
	_, err := machine.Execute(compile(t, stmts...))
	return machine, out.String(), err
}

func lit(v any) *ast.Literal { return &ast.Literal{Value: v} }
func varRef(name string) *ast.Var { return &ast.Var{Name: name} }
func bin(op string, l, r ast.Expr) *ast.Binary {
	return &ast.Binary{Op: op, Left: l, Right: r}
}

func TestArithmeticAndPrint(t *testing.T) {
	// x = 1 + 2; print(x)
	_, out, err := run(t,
		&ast.Assign{Name: "x", Expr: bin("+", lit(int64(1)), lit(int64(2)))},
		&ast.Print{Args: []ast.Expr{varRef("x")}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if out != "3\n" {
		t.Errorf("output = %q, want \"3\\n\"", out)
	}
}

func TestFunctionCall(t *testing.T) {
	// def add(a, b) { return a + b }; print(add(2, 3))
	_, out, err := run(t,
		&ast.FuncDef{
			Name:   "add",
			Params: []string{"a", "b"},
			Body:   &ast.Return{Expr: bin("+", varRef("a"), varRef("b"))},
		},
		&ast.Print{Args: []ast.Expr{&ast.Call{
			Func: varRef("add"),
			Args: []ast.Expr{lit(int64(2)), lit(int64(3))},
		}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if out != "5\n" {
		t.Errorf("output = %q, want \"5\\n\"", out)
	}
}

func TestCallBeforeDefinition(t *testing.T) {
	// Definitions take effect only when executed; calling earlier fails.
	_, _, err := run(t,
		&ast.Print{Args: []ast.Expr{&ast.Call{
			Func: varRef("add"),
			Args: []ast.Expr{lit(int64(1)), lit(int64(2))},
		}}},
		&ast.FuncDef{
			Name:   "add",
			Params: []string{"a", "b"},
			Body:   &ast.Return{Expr: bin("+", varRef("a"), varRef("b"))},
		},
	)
	if !errors.Is(err, vm.ErrUndefinedFunction) {
		t.Fatalf("err = %v, want ErrUndefinedFunction", err)
	}
}

func TestDivisionByZero(t *testing.T) {
	_, _, err := run(t,
		&ast.Assign{Name: "x", Expr: bin("/", lit(int64(5)), lit(int64(0)))},
	)
	if !errors.Is(err, vm.ErrDivisionByZero) {
		t.Fatalf("err = %v, want ErrDivisionByZero", err)
	}

	_, _, err = run(t,
		&ast.Assign{Name: "x", Expr: bin("/", lit(float64(5)), lit(float64(0)))},
	)
	if !errors.Is(err, vm.ErrDivisionByZero) {
		t.Fatalf("float err = %v, want ErrDivisionByZero", err)
	}
}

func TestDivisionSemantics(t *testing.T) {
	machine, _, err := run(t,
		&ast.Assign{Name: "a", Expr: bin("/", lit(int64(7)), lit(int64(2)))},
		&ast.Assign{Name: "b", Expr: bin("/", lit(float64(7)), lit(int64(2)))},
		&ast.Assign{Name: "c", Expr: bin("/", lit(int64(-7)), lit(int64(2)))},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("a"); v != int64(3) {
		t.Errorf("7 / 2 = %#v, want int64(3)", v)
	}
	if v, _ := machine.Global("b"); v != float64(3.5) {
		t.Errorf("7.0 / 2 = %#v, want 3.5", v)
	}
	// Integer division floors toward negative infinity.
	if v, _ := machine.Global("c"); v != int64(-4) {
		t.Errorf("-7 / 2 = %#v, want int64(-4)", v)
	}
}

func TestModuloFollowsDivisorSign(t *testing.T) {
	machine, _, err := run(t,
		&ast.Assign{Name: "a", Expr: bin("%", lit(int64(-7)), lit(int64(3)))},
		&ast.Assign{Name: "b", Expr: bin("%", lit(int64(7)), lit(int64(-3)))},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("a"); v != int64(2) {
		t.Errorf("-7 %% 3 = %#v, want 2", v)
	}
	if v, _ := machine.Global("b"); v != int64(-2) {
		t.Errorf("7 %% -3 = %#v, want -2", v)
	}
}

func TestIfElse(t *testing.T) {
	// if (1 < 2) { print(1) } else { print(2) }
	_, out, err := run(t, &ast.If{
		Cond: bin("<", lit(int64(1)), lit(int64(2))),
		Then: &ast.Print{Args: []ast.Expr{lit(int64(1))}},
		Else: &ast.Print{Args: []ast.Expr{lit(int64(2))}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\n" {
		t.Errorf("output = %q, want \"1\\n\"", out)
	}
}

func TestWhileLoop(t *testing.T) {
	// i = 0; while i < 3 { print(i); i = i + 1 }
	_, out, err := run(t,
		&ast.Assign{Name: "i", Expr: lit(int64(0))},
		&ast.While{
			Cond: bin("<", varRef("i"), lit(int64(3))),
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Print{Args: []ast.Expr{varRef("i")}},
				&ast.Assign{Name: "i", Expr: bin("+", varRef("i"), lit(int64(1)))},
			}},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if out != "0\n1\n2\n" {
		t.Errorf("output = %q", out)
	}
}

func TestForLoop(t *testing.T) {
	_, out, err := run(t, &ast.For{
		Var: "x",
		Iterable: &ast.ListLiteral{Items: []ast.Expr{
			lit(int64(1)), lit(int64(2)), lit(int64(3)),
		}},
		Body: &ast.Print{Args: []ast.Expr{varRef("x")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\n2\n3\n" {
		t.Errorf("output = %q", out)
	}
}

func TestForLoopEmpty(t *testing.T) {
	machine, out, err := run(t,
		&ast.For{
			Var:      "x",
			Iterable: &ast.ListLiteral{},
			Body:     &ast.Print{Args: []ast.Expr{varRef("x")}},
		},
		&ast.Assign{Name: "done", Expr: lit(true)},
	)
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("empty loop printed %q", out)
	}
	if v, _ := machine.Global("done"); v != true {
		t.Error("statement after empty loop did not run")
	}
}

func TestForLoopNested(t *testing.T) {
	inner := &ast.For{
		Var:      "b",
		Iterable: &ast.ListLiteral{Items: []ast.Expr{lit("x"), lit("y")}},
		Body: &ast.Print{Args: []ast.Expr{varRef("a"), varRef("b")}},
	}
	_, out, err := run(t, &ast.For{
		Var:      "a",
		Iterable: &ast.ListLiteral{Items: []ast.Expr{lit(int64(1)), lit(int64(2))}},
		Body:     inner,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "1 x\n1 y\n2 x\n2 y\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestForLoopOverString(t *testing.T) {
	_, out, err := run(t, &ast.For{
		Var:      "c",
		Iterable: lit("abc"),
		Body:     &ast.Print{Args: []ast.Expr{varRef("c")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "a\nb\nc\n" {
		t.Errorf("output = %q", out)
	}
}

func TestForLoopNotIterable(t *testing.T) {
	_, _, err := run(t, &ast.For{
		Var:      "x",
		Iterable: lit(int64(5)),
		Body:     &ast.Pass{},
	})
	if !errors.Is(err, vm.ErrNotIterable) {
		t.Fatalf("err = %v, want ErrNotIterable", err)
	}
}

func TestUndefinedVariable(t *testing.T) {
	_, _, err := run(t, &ast.Print{Args: []ast.Expr{varRef("ghost")}})
	if !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Fatalf("err = %v, want ErrUndefinedVariable", err)
	}
}

func TestCallIsolation(t *testing.T) {
	// The callee reads the caller's x but its assignment does not leak back.
	machine, _, err := run(t,
		&ast.Assign{Name: "x", Expr: lit(int64(1))},
		&ast.FuncDef{
			Name: "mutate",
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{Name: "seen", Expr: varRef("x")},
				&ast.Assign{Name: "x", Expr: lit(int64(99))},
				&ast.Return{Expr: varRef("x")},
			}},
		},
		&ast.Assign{Name: "r", Expr: &ast.Call{Func: varRef("mutate")}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("x"); v != int64(1) {
		t.Errorf("caller's x = %#v, want 1", v)
	}
	if v, _ := machine.Global("r"); v != int64(99) {
		t.Errorf("return value = %#v, want 99", v)
	}
	// The callee's own bindings are gone entirely.
	if _, ok := machine.Global("seen"); ok {
		t.Error("callee-local binding leaked to the caller")
	}
}

func TestNestedDefinitionDoesNotLeak(t *testing.T) {
	// A function defined inside a call is not visible after it returns.
	_, _, err := run(t,
		&ast.FuncDef{
			Name: "outer",
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.FuncDef{Name: "inner", Body: &ast.Return{Expr: lit(int64(1))}},
				&ast.Return{Expr: &ast.Call{Func: varRef("inner")}},
			}},
		},
		&ast.ExprStmt{Expr: &ast.Call{Func: varRef("outer")}},
		&ast.ExprStmt{Expr: &ast.Call{Func: varRef("inner")}},
	)
	if !errors.Is(err, vm.ErrUndefinedFunction) {
		t.Fatalf("err = %v, want ErrUndefinedFunction for inner", err)
	}
}

func TestRecursion(t *testing.T) {
	// def fact(n) { if n < 2 { return 1 } return n * fact(n - 1) }
	machine, _, err := run(t,
		&ast.FuncDef{
			Name:   "fact",
			Params: []string{"n"},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.If{
					Cond: bin("<", varRef("n"), lit(int64(2))),
					Then: &ast.Return{Expr: lit(int64(1))},
				},
				&ast.Return{Expr: bin("*", varRef("n"), &ast.Call{
					Func: varRef("fact"),
					Args: []ast.Expr{bin("-", varRef("n"), lit(int64(1)))},
				})},
			}},
		},
		&ast.Assign{Name: "r", Expr: &ast.Call{
			Func: varRef("fact"),
			Args: []ast.Expr{lit(int64(10))},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("r"); v != int64(3628800) {
		t.Errorf("fact(10) = %#v, want 3628800", v)
	}
}

func TestDeepRecursion(t *testing.T) {
	// Call depth is limited by memory, not the host stack.
	machine, _, err := run(t,
		&ast.FuncDef{
			Name:   "count",
			Params: []string{"n"},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.If{
					Cond: bin("<", varRef("n"), lit(int64(1))),
					Then: &ast.Return{Expr: lit(int64(0))},
				},
				&ast.Return{Expr: bin("+", lit(int64(1)), &ast.Call{
					Func: varRef("count"),
					Args: []ast.Expr{bin("-", varRef("n"), lit(int64(1)))},
				})},
			}},
		},
		&ast.Assign{Name: "r", Expr: &ast.Call{
			Func: varRef("count"),
			Args: []ast.Expr{lit(int64(200000))},
		}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("r"); v != int64(200000) {
		t.Errorf("count(200000) = %#v", v)
	}
}

func TestMissingArgumentsBindNull(t *testing.T) {
	// def f(a, b) { return b }; print(f(1)) -> null
	_, out, err := run(t,
		&ast.FuncDef{
			Name:   "f",
			Params: []string{"a", "b"},
			Body:   &ast.Return{Expr: varRef("b")},
		},
		&ast.Print{Args: []ast.Expr{&ast.Call{
			Func: varRef("f"),
			Args: []ast.Expr{lit(int64(1))},
		}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if out != "null\n" {
		t.Errorf("output = %q, want \"null\\n\"", out)
	}
}

func TestExtraArgumentsDiscarded(t *testing.T) {
	// Surplus arguments are consumed and dropped; the stack stays balanced.
	machine, _, err := run(t,
		&ast.FuncDef{Name: "f", Params: []string{"a"}, Body: &ast.Return{Expr: varRef("a")}},
		&ast.Assign{Name: "r", Expr: &ast.Call{
			Func: varRef("f"),
			Args: []ast.Expr{lit(int64(1)), lit(int64(2)), lit(int64(3))},
		}},
		&ast.Assign{Name: "after", Expr: lit(int64(7))},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("r"); v != int64(1) {
		t.Errorf("f(1, 2, 3) = %#v, want 1", v)
	}
	if v, _ := machine.Global("after"); v != int64(7) {
		t.Error("statement after over-applied call did not run cleanly")
	}
}

func TestLogicalOperatorsReturnOperands(t *testing.T) {
	machine, _, err := run(t,
		&ast.Assign{Name: "a", Expr: bin("and", lit(int64(0)), lit(int64(5)))},
		&ast.Assign{Name: "b", Expr: bin("and", lit(int64(2)), lit(int64(5)))},
		&ast.Assign{Name: "c", Expr: bin("or", lit(""), lit("fallback"))},
		&ast.Assign{Name: "d", Expr: bin("or", lit("first"), lit("second"))},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("a"); v != int64(0) {
		t.Errorf("0 and 5 = %#v, want 0", v)
	}
	if v, _ := machine.Global("b"); v != int64(5) {
		t.Errorf("2 and 5 = %#v, want 5", v)
	}
	if v, _ := machine.Global("c"); v != "fallback" {
		t.Errorf("\"\" or \"fallback\" = %#v", v)
	}
	if v, _ := machine.Global("d"); v != "first" {
		t.Errorf("\"first\" or \"second\" = %#v", v)
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{int64(0), false},
		{int64(-1), true},
		{float64(0), false},
		{"", false},
		{"x", true},
	}
	for _, tt := range tests {
		if got := vm.Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
	if vm.Truthy([]bytecode.Value{}) {
		t.Error("empty list should be falsy")
	}
	if !vm.Truthy([]bytecode.Value{int64(1)}) {
		t.Error("non-empty list should be truthy")
	}
}

func TestComparisonMixedNumeric(t *testing.T) {
	machine, _, err := run(t,
		&ast.Assign{Name: "a", Expr: bin("==", lit(int64(1)), lit(float64(1)))},
		&ast.Assign{Name: "b", Expr: bin("<", lit(int64(1)), lit(float64(1.5)))},
		&ast.Assign{Name: "c", Expr: bin("==", lit("a"), lit(int64(1)))},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("a"); v != true {
		t.Errorf("1 == 1.0 is %#v, want true", v)
	}
	if v, _ := machine.Global("b"); v != true {
		t.Errorf("1 < 1.5 is %#v, want true", v)
	}
	if v, _ := machine.Global("c"); v != false {
		t.Errorf("\"a\" == 1 is %#v, want false", v)
	}
}

func TestStringConcatAndListAppend(t *testing.T) {
	machine, _, err := run(t,
		&ast.Assign{Name: "s", Expr: bin("+", lit("foo"), lit("bar"))},
		&ast.Assign{Name: "l", Expr: bin("+",
			&ast.ListLiteral{Items: []ast.Expr{lit(int64(1))}},
			&ast.ListLiteral{Items: []ast.Expr{lit(int64(2))}},
		)},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("s"); v != "foobar" {
		t.Errorf("concat = %#v", v)
	}
	v, _ := machine.Global("l")
	if !bytecode.ValueEqual(v, []bytecode.Value{int64(1), int64(2)}) {
		t.Errorf("list concat = %#v", v)
	}
}

func TestUnsupportedOperandTypes(t *testing.T) {
	_, _, err := run(t,
		&ast.Assign{Name: "x", Expr: bin("-", lit("a"), lit(int64(1)))},
	)
	if !errors.Is(err, vm.ErrUnsupportedTypes) {
		t.Fatalf("err = %v, want ErrUnsupportedTypes", err)
	}
}

func TestPrintFormatting(t *testing.T) {
	_, out, err := run(t, &ast.Print{Args: []ast.Expr{
		lit(nil), lit(true), lit(int64(3)), lit(float64(2.5)), lit("hi"),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if out != "null true 3 2.5 hi\n" {
		t.Errorf("output = %q", out)
	}
}

func TestTopLevelReturn(t *testing.T) {
	var out bytes.Buffer
	machine := vm.New(vm.WithOutput(&out))
	result, err := machine.Execute(compile(t,
		&ast.Return{Expr: lit(int64(42))},
		&ast.Print{Args: []ast.Expr{lit("unreachable")}},
	))
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(42) {
		t.Errorf("result = %#v, want 42", result)
	}
	if out.Len() != 0 {
		t.Errorf("code after top-level return ran: %q", out.String())
	}
}

func TestReturnOnEmptyStack(t *testing.T) {
	// RETURN_VALUE with nothing on the stack yields null, not an error.
	p := bytecode.NewProgram()
	p.Code = []int{int(bytecode.OpReturnValue)}
	result, err := vm.New(vm.WithOutput(&bytes.Buffer{})).Execute(p)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Errorf("result = %#v, want nil", result)
	}
}

func TestDefFunctionWithoutBody(t *testing.T) {
	// DEF_FUNCTION naming an absent body is skipped; the name simply never
	// becomes callable.
	p := bytecode.NewProgram()
	ni := p.AddName("ghost")
	p.Code = []int{
		int(bytecode.OpDefFunction), ni,
		int(bytecode.OpCallFunction), ni, 0,
	}
	_, err := vm.New(vm.WithOutput(&bytes.Buffer{})).Execute(p)
	if !errors.Is(err, vm.ErrUndefinedFunction) {
		t.Fatalf("err = %v, want ErrUndefinedFunction", err)
	}
}

func TestUnknownOpcode(t *testing.T) {
	p := bytecode.NewProgram()
	p.Code = []int{99}
	_, err := vm.New(vm.WithOutput(&bytes.Buffer{})).Execute(p)
	if !errors.Is(err, vm.ErrUnknownOpcode) {
		t.Fatalf("err = %v, want ErrUnknownOpcode", err)
	}
}

func TestStackUnderflow(t *testing.T) {
	p := bytecode.NewProgram()
	p.Code = []int{int(bytecode.OpPop)}
	_, err := vm.New(vm.WithOutput(&bytes.Buffer{})).Execute(p)
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestFunctionRedefinitionAtRuntime(t *testing.T) {
	machine, _, err := run(t,
		&ast.FuncDef{Name: "f", Body: &ast.Return{Expr: lit(int64(1))}},
		&ast.FuncDef{Name: "f", Body: &ast.Return{Expr: lit(int64(2))}},
		&ast.Assign{Name: "r", Expr: &ast.Call{Func: varRef("f")}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := machine.Global("r"); v != int64(2) {
		t.Errorf("redefined f() = %#v, want 2", v)
	}
}
