// Package ast defines the abstract syntax tree consumed by the Quill
// compiler core. The tree is produced by an external front end (lexer and
// parser live outside this module); the core only requires that it is
// well-formed.
package ast

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Quill
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Program is the root node: an ordered sequence of top-level statements.
type Program struct {
	Stmts []Stmt
}

func (n *Program) node() {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// ExprStmt is an expression evaluated for its side effects; the result is
// discarded.
type ExprStmt struct {
	Expr Expr
}

func (n *ExprStmt) node() {}
func (n *ExprStmt) stmt() {}

// Assign binds the value of Expr to Name in the current scope.
type Assign struct {
	Name string
	Expr Expr
}

func (n *Assign) node() {}
func (n *Assign) stmt() {}

// If is a two-armed conditional. Else may be nil.
type If struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

func (n *If) node() {}
func (n *If) stmt() {}

// While is a pre-test loop.
type While struct {
	Cond Expr
	Body Stmt
}

func (n *While) node() {}
func (n *While) stmt() {}

// For iterates Var over the elements of Iterable.
type For struct {
	Var      string
	Iterable Expr
	Body     Stmt
}

func (n *For) node() {}
func (n *For) stmt() {}

// FuncDef defines a named function. The function becomes callable only when
// control flow reaches the definition at runtime.
type FuncDef struct {
	Name   string
	Params []string
	Body   Stmt
}

func (n *FuncDef) node() {}
func (n *FuncDef) stmt() {}

// Return exits the enclosing function. Expr may be nil (returns null).
type Return struct {
	Expr Expr
}

func (n *Return) node() {}
func (n *Return) stmt() {}

// Pass is a no-op statement.
type Pass struct{}

func (n *Pass) node() {}
func (n *Pass) stmt() {}

// Print writes its arguments, space-separated, to the program's output.
type Print struct {
	Args []Expr
}

func (n *Print) node() {}
func (n *Print) stmt() {}

// Block is a brace-delimited sequence of statements.
type Block struct {
	Stmts []Stmt
}

func (n *Block) node() {}
func (n *Block) stmt() {}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Binary is a binary operation. Op is one of
// + - * / % == != < > <= >= and or.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

func (n *Binary) node() {}
func (n *Binary) expr() {}

// Unary is a unary operation. Op is one of - + not.
type Unary struct {
	Op   string
	Expr Expr
}

func (n *Unary) node() {}
func (n *Unary) expr() {}

// Literal is a constant value: nil, bool, int64, float64, or string.
type Literal struct {
	Value any
}

func (n *Literal) node() {}
func (n *Literal) expr() {}

// Var is a variable reference.
type Var struct {
	Name string
}

func (n *Var) node() {}
func (n *Var) expr() {}

// Call is a direct function call by name. Only named callees are supported;
// calling through an arbitrary expression is rejected by the analyzer.
type Call struct {
	Func Expr
	Args []Expr
}

func (n *Call) node() {}
func (n *Call) expr() {}

// ListLiteral constructs a list from its element expressions.
type ListLiteral struct {
	Items []Expr
}

func (n *ListLiteral) node() {}
func (n *ListLiteral) expr() {}
