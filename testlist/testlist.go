package testlist

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ErrNoModule is returned when no go.mod encloses a test file
var ErrNoModule = errors.New("no go.mod found")

// Package locates a test file's package inside its module.
type Package struct {
	ModuleRoot string // directory holding go.mod
	ModulePath string // module path declared in go.mod
	ImportPath string // import path of the file's directory
}

// FindTestFunctions parses a single _test.go file and returns the names of
// its top-level test functions in declaration order.
func FindTestFunctions(file string) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}

	var testFunctions []string
	for _, decl := range f.Decls {
		funcDecl, ok := decl.(*ast.FuncDecl)
		if !ok || funcDecl.Recv != nil {
			continue
		}
		// Those functions have to start with "Test" and not be "TestMain"
		if isTestName(funcDecl.Name.Name) && funcDecl.Name.Name != "TestMain" {
			testFunctions = append(testFunctions, funcDecl.Name.Name)
		}
	}
	return testFunctions, nil
}

// isTestName mirrors go test: "Test" alone or followed by a non-lowercase rune.
func isTestName(name string) bool {
	if !strings.HasPrefix(name, "Test") {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	c := name[len("Test")]
	return !('a' <= c && c <= 'z')
}

// ResolvePackage walks up from the file to the nearest go.mod and derives
// the import path of the file's package.
func ResolvePackage(file string) (Package, error) {
	absFile, err := filepath.Abs(file)
	if err != nil {
		return Package{}, fmt.Errorf("failed to resolve absolute path for '%s': %w", file, err)
	}
	pkgDir := filepath.Dir(absFile)

	for dir := pkgDir; ; dir = filepath.Dir(dir) {
		goModPath := filepath.Join(dir, "go.mod")
		goModContent, err := os.ReadFile(goModPath)
		if err == nil {
			modFile, err := modfile.ParseLax(goModPath, goModContent, nil)
			if err != nil {
				return Package{}, fmt.Errorf("failed to parse go.mod: %w", err)
			}
			if modFile.Module == nil || modFile.Module.Mod.Path == "" {
				return Package{}, fmt.Errorf("could not find module name in %s", goModPath)
			}
			rel, err := filepath.Rel(dir, pkgDir)
			if err != nil {
				return Package{}, err
			}
			importPath := modFile.Module.Mod.Path
			if rel != "." {
				importPath = path.Join(importPath, filepath.ToSlash(rel))
			}
			return Package{
				ModuleRoot: dir,
				ModulePath: modFile.Module.Mod.Path,
				ImportPath: importPath,
			}, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return Package{}, fmt.Errorf("failed to read go.mod: %w", err)
		}

		if parent := filepath.Dir(dir); parent == dir {
			return Package{}, fmt.Errorf("%w for %s", ErrNoModule, file)
		}
	}
}
