// Package cache stores compiled bytecode keyed by a content hash of the
// source AST, so unchanged programs skip the compiler entirely.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/quill-lang/quill/ast"
)

// HashVersion is the first byte of every serialization. Bump it whenever the
// encoding changes so stale cache rows can never match new compilers.
const HashVersion byte = 0x01

// ---------------------------------------------------------------------------
// Deterministic binary serialization of an AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - One tag byte per node kind, then the node's fields in struct order
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Slices: uint32 big-endian count + elements inline
// ---------------------------------------------------------------------------

const (
	tagProgram byte = iota + 1
	tagExprStmt
	tagAssign
	tagIf
	tagWhile
	tagFor
	tagFuncDef
	tagReturn
	tagPass
	tagPrint
	tagBlock
	tagBinary
	tagUnary
	tagVar
	tagCall
	tagListLiteral
	tagLitNull
	tagLitBool
	tagLitInt
	tagLitFloat
	tagLitString
	tagAbsent
)

// HashProgram returns the hex-encoded SHA-256 of a program's canonical
// serialization. Structurally identical programs always hash alike.
func HashProgram(p *ast.Program) string {
	sum := sha256.Sum256(Serialize(p))
	return hex.EncodeToString(sum[:])
}

// Serialize produces a deterministic byte serialization of an AST node.
func Serialize(n ast.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.node(n)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) stmts(list []ast.Stmt) {
	s.writeUint32(uint32(len(list)))
	for _, st := range list {
		s.node(st)
	}
}

func (s *serializer) exprs(list []ast.Expr) {
	s.writeUint32(uint32(len(list)))
	for _, e := range list {
		s.node(e)
	}
}

func (s *serializer) node(n ast.Node) {
	switch x := n.(type) {
	case *ast.Program:
		s.writeByte(tagProgram)
		s.stmts(x.Stmts)
	case *ast.ExprStmt:
		s.writeByte(tagExprStmt)
		s.node(x.Expr)
	case *ast.Assign:
		s.writeByte(tagAssign)
		s.writeString(x.Name)
		s.node(x.Expr)
	case *ast.If:
		s.writeByte(tagIf)
		s.node(x.Cond)
		s.node(x.Then)
		if x.Else == nil {
			s.writeByte(tagAbsent)
		} else {
			s.node(x.Else)
		}
	case *ast.While:
		s.writeByte(tagWhile)
		s.node(x.Cond)
		s.node(x.Body)
	case *ast.For:
		s.writeByte(tagFor)
		s.writeString(x.Var)
		s.node(x.Iterable)
		s.node(x.Body)
	case *ast.FuncDef:
		s.writeByte(tagFuncDef)
		s.writeString(x.Name)
		s.writeUint32(uint32(len(x.Params)))
		for _, p := range x.Params {
			s.writeString(p)
		}
		s.node(x.Body)
	case *ast.Return:
		s.writeByte(tagReturn)
		if x.Expr == nil {
			s.writeByte(tagAbsent)
		} else {
			s.node(x.Expr)
		}
	case *ast.Pass:
		s.writeByte(tagPass)
	case *ast.Print:
		s.writeByte(tagPrint)
		s.exprs(x.Args)
	case *ast.Block:
		s.writeByte(tagBlock)
		s.stmts(x.Stmts)
	case *ast.Binary:
		s.writeByte(tagBinary)
		s.writeString(x.Op)
		s.node(x.Left)
		s.node(x.Right)
	case *ast.Unary:
		s.writeByte(tagUnary)
		s.writeString(x.Op)
		s.node(x.Expr)
	case *ast.Literal:
		s.literal(x.Value)
	case *ast.Var:
		s.writeByte(tagVar)
		s.writeString(x.Name)
	case *ast.Call:
		s.writeByte(tagCall)
		s.node(x.Func)
		s.exprs(x.Args)
	case *ast.ListLiteral:
		s.writeByte(tagListLiteral)
		s.exprs(x.Items)
	default:
		// New node kinds must be given a tag here before they can be cached.
		panic(fmt.Sprintf("cache: unhashable node %T", n))
	}
}

func (s *serializer) literal(v any) {
	switch x := v.(type) {
	case nil:
		s.writeByte(tagLitNull)
	case bool:
		s.writeByte(tagLitBool)
		if x {
			s.writeByte(1)
		} else {
			s.writeByte(0)
		}
	case int64:
		s.writeByte(tagLitInt)
		s.writeInt64(x)
	case float64:
		s.writeByte(tagLitFloat)
		s.writeFloat64(x)
	case string:
		s.writeByte(tagLitString)
		s.writeString(x)
	default:
		panic(fmt.Sprintf("cache: unhashable literal %T", v))
	}
}
