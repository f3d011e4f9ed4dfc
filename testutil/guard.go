// Package testutil holds shared test fixtures and the import guards that keep
// the public query packages free of internal and driver code.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "nasbench201"

var driverPrefixes = []string{
	"github.com/aws/aws-sdk-go-v2",
	"github.com/jackc/pgx/v5",
	"modernc.org/sqlite",
	"database/sql",
}

// InternalImportForbidden matches module-internal packages.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, modulePath+"/internal/")
}

// DriverImportForbidden matches storage and cloud drivers, which belong in
// internal/infra only.
func DriverImportForbidden(path string) bool {
	for _, prefix := range driverPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import matches forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	found, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "direct import", reason, found)
}

// AssertNoTransitiveDependency runs `go list -deps` on pattern and fails if any
// dependency matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(string) bool, reason string) {
	t.Helper()
	found, out, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	report(t, "transitive dependency", reason, found)
}

// goListDeps is swapped out in tests.
var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveDependencyViolations(pattern string, forbidden func(string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var found []string
	for _, dep := range strings.Fields(string(out)) {
		if forbidden(dep) {
			found = append(found, dep)
		}
	}
	return found, out, nil
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var found []string
	for _, path := range files {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range f.Imports {
			if ip := strings.Trim(spec.Path.Value, `"`); forbidden(ip) {
				found = append(found, ip+" ("+filepath.Base(path)+")")
			}
		}
	}
	return found, nil
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, kind, reason string, found []string) {
	if len(found) == 0 {
		return
	}
	t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(found, "\n"))
}
