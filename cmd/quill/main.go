// Quill CLI - compiles AST programs to bytecode and runs them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/quill-lang/quill/ast"
	"github.com/quill-lang/quill/bytecode"
	"github.com/quill-lang/quill/cache"
	"github.com/quill-lang/quill/codegen"
	"github.com/quill-lang/quill/ir"
	"github.com/quill-lang/quill/manifest"
	"github.com/quill-lang/quill/vm"
)

var log = commonlog.GetLogger("quill.cli")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	dumpIR := flag.Bool("ir", false, "Print the IR listing and stop")
	dumpCode := flag.Bool("code", false, "Print the bytecode disassembly and stop")
	emit := flag.String("emit", "", "Write the compiled bytecode artifact to this path")
	run := flag.String("run", "", "Execute a prebuilt bytecode artifact instead of compiling")
	useCache := flag.Bool("cache", false, "Use the compilation cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quill [options] [program.json]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a JSON-encoded program AST to bytecode and executes it.\n")
		fmt.Fprintf(os.Stderr, "With no file argument the AST is read from stdin.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quill prog.json              # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  quill --ir prog.json         # Show the IR listing\n")
		fmt.Fprintf(os.Stderr, "  quill --code prog.json       # Show the disassembly\n")
		fmt.Fprintf(os.Stderr, "  quill --emit out.qbc prog.json\n")
		fmt.Fprintf(os.Stderr, "  quill --run out.qbc          # Run a prebuilt artifact\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if err := realMain(*dumpIR, *dumpCode, *emit, *run, *useCache, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(1)
	}
}

func realMain(dumpIR, dumpCode bool, emit, run string, useCache bool, arg string) error {
	if run != "" {
		return runArtifact(run)
	}

	// A quill.toml in or above the working directory supplies defaults for
	// the entry file and the cache.
	var mf *manifest.Manifest
	if wd, err := os.Getwd(); err == nil {
		mf, _ = manifest.FindAndLoad(wd)
	}
	if arg == "" && mf != nil && mf.Source.Entry != "" {
		arg = mf.EntryPath()
	}
	if !useCache && mf != nil {
		useCache = mf.Build.Cache
	}

	prog, err := readProgram(arg)
	if err != nil {
		return err
	}

	if dumpIR {
		irProg, err := ir.Analyze(prog)
		if err != nil {
			return err
		}
		fmt.Print(irProg.Dump())
		return nil
	}

	code, err := compile(prog, useCache, mf)
	if err != nil {
		return err
	}

	if dumpCode {
		fmt.Print(code.Disassemble())
		return nil
	}

	if emit != "" {
		data, err := bytecode.Marshal(code)
		if err != nil {
			return err
		}
		if err := os.WriteFile(emit, data, 0o644); err != nil {
			return err
		}
		log.Infof("wrote %d bytes to %s", len(data), emit)
		return nil
	}

	return execute(code)
}

func compile(prog *ast.Program, useCache bool, mf *manifest.Manifest) (*bytecode.Program, error) {
	var store *cache.Store
	var hash string

	if useCache {
		path := ".quill/cache.db"
		if mf != nil {
			path = mf.CacheDBPath()
		}
		s, err := cache.Open(path)
		if err != nil {
			// A broken cache never blocks a build.
			log.Warningf("cache unavailable: %v", err)
		} else {
			store = s
			defer store.Close()
			hash = cache.HashProgram(prog)
			if p, err := store.Get(hash); err == nil {
				log.Infof("cache hit %s", hash[:12])
				return p, nil
			} else if !errors.Is(err, cache.ErrMiss) {
				log.Warningf("cache read: %v", err)
			}
		}
	}

	irProg, err := ir.Analyze(prog)
	if err != nil {
		return nil, err
	}
	code, err := codegen.Generate(irProg)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Put(hash, code); err != nil {
			log.Warningf("cache write: %v", err)
		}
	}
	return code, nil
}

func execute(code *bytecode.Program) error {
	machine := vm.New(vm.WithOutput(os.Stdout))
	result, err := machine.Execute(code)
	if err != nil {
		return err
	}
	if result != nil {
		log.Infof("program returned %s", bytecode.FormatValue(result))
	}
	return nil
}

func runArtifact(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	code, err := bytecode.Unmarshal(data)
	if err != nil {
		return err
	}
	return execute(code)
}

func readProgram(path string) (*ast.Program, error) {
	var r io.Reader
	if path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return ast.DecodeJSON(r)
}
