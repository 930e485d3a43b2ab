package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the current wire format version. Increment on incompatible
// changes.
const WireVersion uint16 = 1

// envelope wraps a program with a version for forward-compatibility checks.
type envelope struct {
	Version uint16   `cbor:"1,keyasint"`
	Program *Program `cbor:"2,keyasint"`
}

var (
	wireEncMode cbor.EncMode
	wireDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	wireEncMode = em

	// Decode unsigned integers as int64 so constant pools round-trip
	// bit-exactly: a pooled int64 must come back as int64, not uint64.
	dm, err := cbor.DecOptions{IntDec: cbor.IntDecConvertSigned}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	wireDecMode = dm
}

// Marshal serializes a compiled program to canonical CBOR bytes. Canonical
// encoding means the same program always produces the same bytes, which the
// compile cache relies on.
func Marshal(p *Program) ([]byte, error) {
	return wireEncMode.Marshal(&envelope{Version: WireVersion, Program: p})
}

// Unmarshal deserializes a compiled program from CBOR bytes.
func Unmarshal(data []byte) (*Program, error) {
	var env envelope
	if err := wireDecMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if env.Version > WireVersion {
		return nil, fmt.Errorf("bytecode: wire version %d is newer than supported version %d", env.Version, WireVersion)
	}
	if env.Program == nil {
		return nil, fmt.Errorf("bytecode: wire envelope has no program")
	}
	return env.Program, nil
}
