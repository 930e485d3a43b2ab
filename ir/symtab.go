package ir

// ---------------------------------------------------------------------------
// Symbol table: lexically-nested declaration tracking
// ---------------------------------------------------------------------------

// ScopeKind classifies where a symbol was introduced.
type ScopeKind int

const (
	// ScopeLocal is an ordinary assignment-introduced variable.
	ScopeLocal ScopeKind = iota
	// ScopeParam is a function parameter.
	ScopeParam
)

// Symbol is one declared name. Symbols are advisory in this design: the
// analyzer records them for scope bookkeeping, but an absent symbol never
// blocks code generation; undefined-name detection is deferred to the VM.
type Symbol struct {
	Name string
	Type string // always "any"; kept for future type tracking
	Kind ScopeKind
}

// SymbolTable is an ordered stack of scopes. Push and Pop bound function
// bodies; with no functions in flight it degrades to a single global scope.
type SymbolTable struct {
	scopes []map[string]Symbol
}

// NewSymbolTable creates a table with one open global scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{scopes: []map[string]Symbol{{}}}
}

// Push enters a new innermost scope.
func (t *SymbolTable) Push() {
	t.scopes = append(t.scopes, map[string]Symbol{})
}

// Pop exits the innermost scope. The global scope is never popped.
func (t *SymbolTable) Pop() {
	if len(t.scopes) > 1 {
		t.scopes = t.scopes[:len(t.scopes)-1]
	}
}

// Define records a symbol in the innermost scope. Redefinition shadows.
func (t *SymbolTable) Define(name string, kind ScopeKind) {
	t.scopes[len(t.scopes)-1][name] = Symbol{Name: name, Type: "any", Kind: kind}
}

// Lookup searches scopes innermost to outermost.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if sym, ok := t.scopes[i][name]; ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// Depth returns the number of open scopes.
func (t *SymbolTable) Depth() int {
	return len(t.scopes)
}
