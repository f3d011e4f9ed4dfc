package blob

import (
	"slices"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Archive backends sit behind this facade: archive, app and cmd code must go
// through blob.Store and never import a driver package directly.
func TestDriversOnlyReachableThroughFacade(t *testing.T) {
	const (
		drivers = "nasbench201/internal/infra/blob"
		facade  = "nasbench201/internal/blob"
	)
	within := func(path, root string) bool { return path == root || strings.HasPrefix(path, root+"/") }

	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}, "nasbench201/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var leaks []string
	for _, pkg := range pkgs {
		if within(pkg.PkgPath, facade) || within(pkg.PkgPath, drivers) {
			continue
		}
		for imp := range pkg.Imports {
			if within(imp, drivers) {
				leaks = append(leaks, pkg.PkgPath+" -> "+imp)
			}
		}
	}
	slices.Sort(leaks)
	leaks = slices.Compact(leaks)
	for _, l := range leaks {
		t.Errorf("driver imported outside the blob facade: %s", l)
	}
}
