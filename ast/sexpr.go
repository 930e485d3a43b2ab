package ast

import (
	"fmt"
	"strings"
)

// Sexpr renders a node as an s-expression. It is used in diagnostics and
// tests; it is not part of the compilation contract.
func Sexpr(n Node) string {
	switch n := n.(type) {
	case *Program:
		return "(program " + sexprStmts(n.Stmts) + ")"
	case *ExprStmt:
		return "(expr " + Sexpr(n.Expr) + ")"
	case *Assign:
		return fmt.Sprintf("(assign %s %s)", n.Name, Sexpr(n.Expr))
	case *If:
		if n.Else != nil {
			return fmt.Sprintf("(if %s %s %s)", Sexpr(n.Cond), Sexpr(n.Then), Sexpr(n.Else))
		}
		return fmt.Sprintf("(if %s %s)", Sexpr(n.Cond), Sexpr(n.Then))
	case *While:
		return fmt.Sprintf("(while %s %s)", Sexpr(n.Cond), Sexpr(n.Body))
	case *For:
		return fmt.Sprintf("(for %s %s %s)", n.Var, Sexpr(n.Iterable), Sexpr(n.Body))
	case *FuncDef:
		return fmt.Sprintf("(def %s (%s) %s)", n.Name, strings.Join(n.Params, " "), Sexpr(n.Body))
	case *Return:
		if n.Expr != nil {
			return "(return " + Sexpr(n.Expr) + ")"
		}
		return "(return)"
	case *Pass:
		return "(pass)"
	case *Print:
		if len(n.Args) == 0 {
			return "(print)"
		}
		return "(print " + sexprExprs(n.Args) + ")"
	case *Block:
		return "(block " + sexprStmts(n.Stmts) + ")"
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", n.Op, Sexpr(n.Left), Sexpr(n.Right))
	case *Unary:
		return fmt.Sprintf("(%s %s)", n.Op, Sexpr(n.Expr))
	case *Literal:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		if n.Value == nil {
			return "null"
		}
		return fmt.Sprintf("%v", n.Value)
	case *Var:
		return n.Name
	case *Call:
		if len(n.Args) == 0 {
			return "(call " + Sexpr(n.Func) + ")"
		}
		return fmt.Sprintf("(call %s %s)", Sexpr(n.Func), sexprExprs(n.Args))
	case *ListLiteral:
		return "(list " + sexprExprs(n.Items) + ")"
	default:
		return fmt.Sprintf("(unknown %T)", n)
	}
}

func sexprStmts(stmts []Stmt) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = Sexpr(s)
	}
	return strings.Join(parts, " ")
}

func sexprExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = Sexpr(e)
	}
	return strings.Join(parts, " ")
}
