package ir

import (
	"fmt"

	"github.com/quill-lang/quill/ast"
	"github.com/quill-lang/quill/bytecode"
)

// binaryOps maps source-level binary operators to their opcodes.
var binaryOps = map[string]bytecode.Opcode{
	"+":   bytecode.OpAdd,
	"-":   bytecode.OpSub,
	"*":   bytecode.OpMul,
	"/":   bytecode.OpDiv,
	"%":   bytecode.OpMod,
	"==":  bytecode.OpEq,
	"!=":  bytecode.OpNeq,
	"<":   bytecode.OpLt,
	">":   bytecode.OpGt,
	"<=":  bytecode.OpLe,
	">=":  bytecode.OpGe,
	"and": bytecode.OpAnd,
	"or":  bytecode.OpOr,
}

// unaryOps maps source-level unary operators to their opcodes.
var unaryOps = map[string]bytecode.Opcode{
	"-":   bytecode.OpNegate,
	"+":   bytecode.OpPos,
	"not": bytecode.OpNot,
}

// Analyzer lowers an AST into IR. One analyzer serves one analysis run; the
// label counter is shared across all units of the run so every generated
// label is distinct.
type Analyzer struct {
	symbols    *SymbolTable
	labelCount int
	program    *Program
}

// NewAnalyzer creates an analyzer with an empty global scope.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		symbols: NewSymbolTable(),
		program: &Program{},
	}
}

// Analyze lowers a program AST into IR. It fails only on malformed or
// unsupported tree shapes; those are contract violations by the front end,
// not conditions a source program can trigger.
func Analyze(prog *ast.Program) (*Program, error) {
	return NewAnalyzer().Analyze(prog)
}

// Analyze runs the lowering. The analyzer is single-use.
func (a *Analyzer) Analyze(prog *ast.Program) (*Program, error) {
	b := NewBuilder()
	for _, stmt := range prog.Stmts {
		if err := a.lowerStmt(b, stmt); err != nil {
			return nil, err
		}
	}
	a.program.Instrs = b.Instructions()
	return a.program, nil
}

// newLabel mints a fresh label from the run-wide counter.
func (a *Analyzer) newLabel() Label {
	l := Label(fmt.Sprintf("L%d", a.labelCount))
	a.labelCount++
	return l
}

func (a *Analyzer) lowerStmt(b *Builder, stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		if err := a.lowerExpr(b, s.Expr); err != nil {
			return err
		}
		b.Emit(bytecode.OpPop)
		return nil

	case *ast.Assign:
		if err := a.lowerExpr(b, s.Expr); err != nil {
			return err
		}
		a.symbols.Define(s.Name, ScopeLocal)
		b.Emit(bytecode.OpStore, Name(s.Name))
		return nil

	case *ast.If:
		return a.lowerIf(b, s)

	case *ast.While:
		return a.lowerWhile(b, s)

	case *ast.For:
		return a.lowerFor(b, s)

	case *ast.FuncDef:
		return a.lowerFuncDef(b, s)

	case *ast.Return:
		if s.Expr != nil {
			if err := a.lowerExpr(b, s.Expr); err != nil {
				return err
			}
		} else {
			b.Emit(bytecode.OpLoadConst, Lit(nil))
		}
		b.Emit(bytecode.OpReturnValue)
		return nil

	case *ast.Pass:
		b.Emit(bytecode.OpNop)
		return nil

	case *ast.Print:
		for _, arg := range s.Args {
			if err := a.lowerExpr(b, arg); err != nil {
				return err
			}
		}
		b.Emit(bytecode.OpPrint, Count(len(s.Args)))
		return nil

	case *ast.Block:
		for _, inner := range s.Stmts {
			if err := a.lowerStmt(b, inner); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("ir: no lowering for statement %T", stmt)
	}
}

func (a *Analyzer) lowerIf(b *Builder, s *ast.If) error {
	elseLabel := a.newLabel()
	endLabel := a.newLabel()

	if err := a.lowerExpr(b, s.Cond); err != nil {
		return err
	}
	b.Emit(bytecode.OpJumpIfFalse, LabelRef(elseLabel))

	if err := a.lowerStmt(b, s.Then); err != nil {
		return err
	}
	b.Emit(bytecode.OpJump, LabelRef(endLabel))

	b.Emit(bytecode.OpLabel, LabelRef(elseLabel))
	if s.Else != nil {
		if err := a.lowerStmt(b, s.Else); err != nil {
			return err
		}
	}
	b.Emit(bytecode.OpLabel, LabelRef(endLabel))
	return nil
}

func (a *Analyzer) lowerWhile(b *Builder, s *ast.While) error {
	loopLabel := a.newLabel()
	exitLabel := a.newLabel()

	b.Emit(bytecode.OpLabel, LabelRef(loopLabel))
	if err := a.lowerExpr(b, s.Cond); err != nil {
		return err
	}
	b.Emit(bytecode.OpJumpIfFalse, LabelRef(exitLabel))

	if err := a.lowerStmt(b, s.Body); err != nil {
		return err
	}
	b.Emit(bytecode.OpJump, LabelRef(loopLabel))

	b.Emit(bytecode.OpLabel, LabelRef(exitLabel))
	return nil
}

func (a *Analyzer) lowerFor(b *Builder, s *ast.For) error {
	loopLabel := a.newLabel()
	exitLabel := a.newLabel()

	a.symbols.Define(s.Var, ScopeLocal)

	// The iterable is evaluated exactly once; SETUP_LOOP moves it into
	// iteration state at runtime.
	if err := a.lowerExpr(b, s.Iterable); err != nil {
		return err
	}
	b.Emit(bytecode.OpSetupLoop)

	b.Emit(bytecode.OpLabel, LabelRef(loopLabel))
	b.Emit(bytecode.OpForIter, LabelRef(exitLabel), Name(s.Var))

	if err := a.lowerStmt(b, s.Body); err != nil {
		return err
	}
	b.Emit(bytecode.OpJump, LabelRef(loopLabel))

	b.Emit(bytecode.OpLabel, LabelRef(exitLabel))
	return nil
}

func (a *Analyzer) lowerFuncDef(b *Builder, s *ast.FuncDef) error {
	a.symbols.Push()
	for _, param := range s.Params {
		a.symbols.Define(param, ScopeParam)
	}

	// The body gets its own builder; the enclosing sequence is untouched
	// until the DEF_FUNCTION instruction below.
	fb := NewBuilder()
	if err := a.lowerStmt(fb, s.Body); err != nil {
		a.symbols.Pop()
		return err
	}
	if !fb.endsWithReturn() {
		fb.Emit(bytecode.OpLoadConst, Lit(nil))
		fb.Emit(bytecode.OpReturnValue)
	}
	a.symbols.Pop()

	a.program.addFunction(&Function{
		Name:   s.Name,
		Params: s.Params,
		Instrs: fb.Instructions(),
	})

	// The function becomes callable only when this instruction executes;
	// there is no hoisting.
	b.Emit(bytecode.OpDefFunction, Name(s.Name))
	return nil
}

func (a *Analyzer) lowerExpr(b *Builder, expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.Literal:
		b.Emit(bytecode.OpLoadConst, Lit(e.Value))
		return nil

	case *ast.Var:
		// Advisory lookup only: an unresolved name still compiles to a
		// LOAD, and the VM reports it if the load actually executes.
		a.symbols.Lookup(e.Name)
		b.Emit(bytecode.OpLoad, Name(e.Name))
		return nil

	case *ast.Binary:
		if err := a.lowerExpr(b, e.Left); err != nil {
			return err
		}
		if err := a.lowerExpr(b, e.Right); err != nil {
			return err
		}
		op, ok := binaryOps[e.Op]
		if !ok {
			return fmt.Errorf("ir: unsupported binary operator %q", e.Op)
		}
		b.Emit(op)
		return nil

	case *ast.Unary:
		if err := a.lowerExpr(b, e.Expr); err != nil {
			return err
		}
		op, ok := unaryOps[e.Op]
		if !ok {
			return fmt.Errorf("ir: unsupported unary operator %q", e.Op)
		}
		b.Emit(op)
		return nil

	case *ast.Call:
		target, ok := e.Func.(*ast.Var)
		if !ok {
			return fmt.Errorf("ir: unsupported call target %T, only direct calls by name are allowed", e.Func)
		}
		for _, arg := range e.Args {
			if err := a.lowerExpr(b, arg); err != nil {
				return err
			}
		}
		b.Emit(bytecode.OpCallFunction, Name(target.Name), Count(len(e.Args)))
		return nil

	case *ast.ListLiteral:
		for _, item := range e.Items {
			if err := a.lowerExpr(b, item); err != nil {
				return err
			}
		}
		b.Emit(bytecode.OpBuildList, Count(len(e.Items)))
		return nil

	default:
		return fmt.Errorf("ir: no lowering for expression %T", expr)
	}
}
