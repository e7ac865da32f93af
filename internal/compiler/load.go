package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/ledgerd/internal/ir"
)

// LoadFS compiles every .cue file in fsys (recursively) into template specs.
// Files are compiled independently and in lexical path order, so a template
// declared in two files surfaces as a duplicate instead of being unified.
// Compile and validation errors are collected and returned together.
func LoadFS(fsys fs.FS) ([]ir.TemplateSpec, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".cue" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found")
	}
	sort.Strings(files)

	ctx := cuecontext.New()
	var specs []ir.TemplateSpec
	var errs []error
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(f))
		compiled, cerrs := CompileCatalogue(v)
		errs = append(errs, cerrs...)
		specs = append(specs, compiled...)
	}

	// Duplicate names are left to the registry, which reports them as
	// DuplicateTemplate ledger errors.
	for _, ve := range ValidateCatalogue(specs) {
		if ve.Code == ErrDuplicateTemplate {
			continue
		}
		errs = append(errs, ve)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

// LoadDir is LoadFS over a directory on disk.
func LoadDir(dir string) ([]ir.TemplateSpec, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("templates directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	return LoadFS(os.DirFS(dir))
}
