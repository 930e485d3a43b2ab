package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// JSON interchange form for ASTs. The external front end (lexer/parser, out
// of process) hands the core a tree in this format; each node is an object
// with a "kind" discriminator. Integer and float literals are distinguished
// by the presence of a fraction or exponent in the JSON number.

type jsonNode struct {
	Kind string `json:"kind"`

	Name   string   `json:"name,omitempty"`
	Op     string   `json:"op,omitempty"`
	Var    string   `json:"var,omitempty"`
	Params []string `json:"params,omitempty"`

	Value json.RawMessage `json:"value,omitempty"`

	Expr     *jsonNode `json:"expr,omitempty"`
	Cond     *jsonNode `json:"cond,omitempty"`
	Then     *jsonNode `json:"then,omitempty"`
	Else     *jsonNode `json:"else,omitempty"`
	Body     *jsonNode `json:"body,omitempty"`
	Left     *jsonNode `json:"left,omitempty"`
	Right    *jsonNode `json:"right,omitempty"`
	Func     *jsonNode `json:"func,omitempty"`
	Iterable *jsonNode `json:"iterable,omitempty"`

	Stmts []*jsonNode `json:"stmts,omitempty"`
	Args  []*jsonNode `json:"args,omitempty"`
	Items []*jsonNode `json:"items,omitempty"`
}

// DecodeJSON reads a JSON-encoded AST from r. The document root must be a
// "program" node.
func DecodeJSON(r io.Reader) (*Program, error) {
	var root jsonNode
	dec := json.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("ast: decode: %w", err)
	}
	if root.Kind != "program" {
		return nil, fmt.Errorf("ast: document root is %q, want \"program\"", root.Kind)
	}
	stmts, err := decodeStmts(root.Stmts)
	if err != nil {
		return nil, err
	}
	return &Program{Stmts: stmts}, nil
}

// EncodeJSON writes the JSON form of a program to w.
func EncodeJSON(w io.Writer, p *Program) error {
	n, err := encodeNode(p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("ast: encode: %w", err)
	}
	return nil
}

func decodeStmts(nodes []*jsonNode) ([]Stmt, error) {
	stmts := make([]Stmt, 0, len(nodes))
	for _, n := range nodes {
		s, err := decodeStmt(n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func decodeStmt(n *jsonNode) (Stmt, error) {
	if n == nil {
		return nil, fmt.Errorf("ast: missing statement node")
	}
	switch n.Kind {
	case "expr":
		e, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: e}, nil
	case "assign":
		e, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Assign{Name: n.Name, Expr: e}, nil
	case "if":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeStmt(n.Then)
		if err != nil {
			return nil, err
		}
		var els Stmt
		if n.Else != nil {
			if els, err = decodeStmt(n.Else); err != nil {
				return nil, err
			}
		}
		return &If{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n.Body)
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil
	case "for":
		iter, err := decodeExpr(n.Iterable)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmt(n.Body)
		if err != nil {
			return nil, err
		}
		return &For{Var: n.Var, Iterable: iter, Body: body}, nil
	case "def":
		body, err := decodeStmt(n.Body)
		if err != nil {
			return nil, err
		}
		return &FuncDef{Name: n.Name, Params: n.Params, Body: body}, nil
	case "return":
		if n.Expr == nil {
			return &Return{}, nil
		}
		e, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Return{Expr: e}, nil
	case "pass":
		return &Pass{}, nil
	case "print":
		args, err := decodeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &Print{Args: args}, nil
	case "block":
		stmts, err := decodeStmts(n.Stmts)
		if err != nil {
			return nil, err
		}
		return &Block{Stmts: stmts}, nil
	default:
		return nil, fmt.Errorf("ast: unknown statement kind %q", n.Kind)
	}
}

func decodeExprs(nodes []*jsonNode) ([]Expr, error) {
	exprs := make([]Expr, 0, len(nodes))
	for _, n := range nodes {
		e, err := decodeExpr(n)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func decodeExpr(n *jsonNode) (Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("ast: missing expression node")
	}
	switch n.Kind {
	case "binary":
		left, err := decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: n.Op, Left: left, Right: right}, nil
	case "unary":
		e, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: n.Op, Expr: e}, nil
	case "literal":
		v, err := decodeLiteral(n.Value)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: v}, nil
	case "var":
		return &Var{Name: n.Name}, nil
	case "call":
		fn, err := decodeExpr(n.Func)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Func: fn, Args: args}, nil
	case "list":
		items, err := decodeExprs(n.Items)
		if err != nil {
			return nil, err
		}
		return &ListLiteral{Items: items}, nil
	default:
		return nil, fmt.Errorf("ast: unknown expression kind %q", n.Kind)
	}
}

// decodeLiteral interprets a raw JSON value as a Quill literal. Numbers
// without a fraction or exponent become int64, everything else float64.
func decodeLiteral(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("ast: literal: %w", err)
	}
	switch v := v.(type) {
	case nil, bool, string:
		return v, nil
	case json.Number:
		s := v.String()
		if !strings.ContainsAny(s, ".eE") {
			return v.Int64()
		}
		return v.Float64()
	default:
		return nil, fmt.Errorf("ast: literal must be null, bool, number, or string, got %T", v)
	}
}

func encodeNode(n Node) (*jsonNode, error) {
	switch n := n.(type) {
	case *Program:
		stmts, err := encodeStmts(n.Stmts)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "program", Stmts: stmts}, nil
	case *ExprStmt:
		e, err := encodeNode(n.Expr)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "expr", Expr: e}, nil
	case *Assign:
		e, err := encodeNode(n.Expr)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "assign", Name: n.Name, Expr: e}, nil
	case *If:
		out := &jsonNode{Kind: "if"}
		var err error
		if out.Cond, err = encodeNode(n.Cond); err != nil {
			return nil, err
		}
		if out.Then, err = encodeNode(n.Then); err != nil {
			return nil, err
		}
		if n.Else != nil {
			if out.Else, err = encodeNode(n.Else); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *While:
		out := &jsonNode{Kind: "while"}
		var err error
		if out.Cond, err = encodeNode(n.Cond); err != nil {
			return nil, err
		}
		if out.Body, err = encodeNode(n.Body); err != nil {
			return nil, err
		}
		return out, nil
	case *For:
		out := &jsonNode{Kind: "for", Var: n.Var}
		var err error
		if out.Iterable, err = encodeNode(n.Iterable); err != nil {
			return nil, err
		}
		if out.Body, err = encodeNode(n.Body); err != nil {
			return nil, err
		}
		return out, nil
	case *FuncDef:
		body, err := encodeNode(n.Body)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "def", Name: n.Name, Params: n.Params, Body: body}, nil
	case *Return:
		out := &jsonNode{Kind: "return"}
		if n.Expr != nil {
			var err error
			if out.Expr, err = encodeNode(n.Expr); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *Pass:
		return &jsonNode{Kind: "pass"}, nil
	case *Print:
		args, err := encodeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "print", Args: args}, nil
	case *Block:
		stmts, err := encodeStmts(n.Stmts)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "block", Stmts: stmts}, nil
	case *Binary:
		out := &jsonNode{Kind: "binary", Op: n.Op}
		var err error
		if out.Left, err = encodeNode(n.Left); err != nil {
			return nil, err
		}
		if out.Right, err = encodeNode(n.Right); err != nil {
			return nil, err
		}
		return out, nil
	case *Unary:
		e, err := encodeNode(n.Expr)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "unary", Op: n.Op, Expr: e}, nil
	case *Literal:
		raw, err := json.Marshal(n.Value)
		if err != nil {
			return nil, fmt.Errorf("ast: encode literal: %w", err)
		}
		return &jsonNode{Kind: "literal", Value: raw}, nil
	case *Var:
		return &jsonNode{Kind: "var", Name: n.Name}, nil
	case *Call:
		fn, err := encodeNode(n.Func)
		if err != nil {
			return nil, err
		}
		args, err := encodeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "call", Func: fn, Args: args}, nil
	case *ListLiteral:
		items, err := encodeExprs(n.Items)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Kind: "list", Items: items}, nil
	default:
		return nil, fmt.Errorf("ast: cannot encode node %T", n)
	}
}

func encodeStmts(stmts []Stmt) ([]*jsonNode, error) {
	out := make([]*jsonNode, len(stmts))
	for i, s := range stmts {
		n, err := encodeNode(s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func encodeExprs(exprs []Expr) ([]*jsonNode, error) {
	out := make([]*jsonNode, len(exprs))
	for i, e := range exprs {
		n, err := encodeNode(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
