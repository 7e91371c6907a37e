package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadDir builds the CUE package in dir and compiles its definitions.
func LoadDir(dir string) ([]Definition, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("definitions directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}
	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return CompileFile(value)
}

// LoadFiles compiles each file on its own and returns the definitions of
// all of them, in file order.
func LoadFiles(paths ...string) ([]Definition, []error) {
	ctx := cuecontext.New()
	var (
		defs []Definition
		errs []error
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", filepath.Base(path), err))
			continue
		}
		value := ctx.CompileBytes(data, cue.Filename(path))
		fileDefs, fileErrs := CompileFile(value)
		defs = append(defs, fileDefs...)
		errs = append(errs, fileErrs...)
	}
	return defs, errs
}
