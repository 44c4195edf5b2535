package core

import (
	"go/ast"
	"mousedb/testutil"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestCoreStaysFreeOfOuterLayers keeps the engine independent of the CLI,
// configuration, audit archive and blob backends that are layered on top.
func TestCoreStaysFreeOfOuterLayers(t *testing.T) {
	testutil.AssertNoImports(t, testutil.OuterLayerImport, "engine must not reach outward",
		"mousedb/internal/core", "mousedb/pkg/domain")
}

// TestCoreLinksNoStorageDriver leaves driver selection to the persistence
// adapters.
func TestCoreLinksNoStorageDriver(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImport, "drivers belong to infra/persistence")
}

// TestNoTypeAliases rejects alias declarations in the engine packages so
// domain types keep a single name.
func TestNoTypeAliases(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedSyntax | packages.NeedFiles}
	pkgs, err := packages.Load(cfg, "mousedb/internal/core", "mousedb/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				if ts, ok := n.(*ast.TypeSpec); ok && ts.Assign.IsValid() {
					t.Errorf("%s: type alias %s", pkg.PkgPath, ts.Name.Name)
				}
				return true
			})
		}
	}
}
