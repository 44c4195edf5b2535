package domain

import (
	"mousedb/testutil"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestDomainDoesNotImportInternal enforces that the domain layer stays free of
// engine and infrastructure packages so collaborators can depend on it alone.
func TestDomainDoesNotImportInternal(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, "mousedb/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Fatalf("domain package not found")
	}

	seen := make(map[string]struct{})
	packages.Visit(pkgs, func(p *packages.Package) bool {
		if strings.HasPrefix(p.PkgPath, "mousedb/internal") {
			seen[p.PkgPath] = struct{}{}
		}
		return true
	}, nil)

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		t.Fatalf("domain package must not depend on internal packages: %s", strings.Join(violations, ", "))
	}
}

func TestDomainFilesImportNothingInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImport, "domain is the shared vocabulary")
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImport, "domain declares ports only")
}
