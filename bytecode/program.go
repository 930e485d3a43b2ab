// Package bytecode defines Quill's compiled form: a flat integer instruction
// stream with deduplicated constant and name pools, plus a table of compiled
// function bodies. Programs are produced by the codegen package and are
// immutable once generation completes.
package bytecode

import "fmt"

// Function is one compiled function body. It shares the enclosing program's
// constant and name pools.
type Function struct {
	Name   string   `cbor:"1,keyasint"`
	Params []string `cbor:"2,keyasint"`
	Code   []int    `cbor:"3,keyasint"`
}

// Program is a complete compiled unit: top-level code, the shared pools, and
// the function table in definition order.
type Program struct {
	Code      []int       `cbor:"1,keyasint"`
	Constants []Value     `cbor:"2,keyasint"`
	Names     []string    `cbor:"3,keyasint"`
	Functions []*Function `cbor:"4,keyasint"`
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		Code:      make([]int, 0, 64),
		Constants: make([]Value, 0, 8),
		Names:     make([]string, 0, 8),
	}
}

// AddConstant adds a value to the constant pool and returns its index. If an
// equal constant is already pooled, the existing index is returned.
func (p *Program) AddConstant(v Value) int {
	key := poolKey(v)
	for i, c := range p.Constants {
		if poolKey(c) == key {
			return i
		}
	}
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// ConstantIndex returns the pool index of v, or an error if it was never
// collected. A miss here is an internal consistency error in the generator,
// never a user-facing condition.
func (p *Program) ConstantIndex(v Value) (int, error) {
	key := poolKey(v)
	for i, c := range p.Constants {
		if poolKey(c) == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("bytecode: constant %v missing from pool", v)
}

// AddName adds a name to the name pool and returns its index, deduplicated.
func (p *Program) AddName(name string) int {
	for i, n := range p.Names {
		if n == name {
			return i
		}
	}
	p.Names = append(p.Names, name)
	return len(p.Names) - 1
}

// NameIndex returns the pool index of name, or an error on a miss.
func (p *Program) NameIndex(name string) (int, error) {
	for i, n := range p.Names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("bytecode: name %q missing from pool", name)
}

// Function returns the compiled function with the given name, or nil.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
