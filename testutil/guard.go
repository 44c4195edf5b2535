// Package testutil holds layering guards shared by the architecture tests of
// the engine, domain and CLI packages.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Module is the import path prefix of this repository.
const Module = "mousedb"

// outerLayers are the packages stacked on top of the engine.
var outerLayers = []string{
	Module + "/cmd",
	Module + "/internal/audit",
	Module + "/internal/config",
	Module + "/internal/blob",
	Module + "/internal/infra/blob",
	Module + "/internal/infra/logging",
}

// storageDrivers are third-party database drivers only the persistence
// adapters may link.
var storageDrivers = []string{
	"modernc.org/sqlite",
	"github.com/jackc/pgx",
	"github.com/aws/aws-sdk-go-v2",
}

func hasPrefixPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// OuterLayerImport reports whether path belongs to the CLI, configuration,
// audit archive, blob or logging layers.
func OuterLayerImport(path string) bool {
	for _, prefix := range outerLayers {
		if hasPrefixPath(path, prefix) {
			return true
		}
	}
	return false
}

// InternalImport reports whether path points below mousedb/internal.
func InternalImport(path string) bool {
	return hasPrefixPath(path, Module+"/internal")
}

// StorageDriverImport reports whether path is one of the database or object
// storage SDKs.
func StorageDriverImport(path string) bool {
	for _, prefix := range storageDrivers {
		if hasPrefixPath(path, prefix) {
			return true
		}
	}
	return false
}

// AssertNoImports loads the packages matching patterns and fails the test
// when any direct import satisfies forbidden.
func AssertNoImports(t testing.TB, forbidden func(string) bool, reason string, patterns ...string) {
	t.Helper()
	viols, err := importViolations(patterns, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "forbidden imports", reason, viols)
}

// AssertNoDirectImports parses the non-test .go files in dir and fails when
// an import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	viols, err := fileImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "forbidden direct imports", reason, viols)
}

var loadPackages = func(patterns []string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	return packages.Load(cfg, patterns...)
}

func importViolations(patterns []string, forbidden func(string) bool) ([]string, error) {
	pkgs, err := loadPackages(patterns)
	if err != nil {
		return nil, err
	}
	var viols []string
	for _, pkg := range pkgs {
		for path := range pkg.Imports {
			if forbidden(path) {
				viols = append(viols, pkg.PkgPath+" -> "+path)
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

func fileImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
