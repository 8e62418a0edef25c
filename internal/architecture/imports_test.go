package architecture_test

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/mod/modfile"
)

type violation struct {
	file string
	imp  string
	rule string
}

// rule bans imports from files under dir. Test files are exempt; they wire
// concrete backends on purpose.
type rule struct {
	dir      string
	banned   []string
	external bool
}

func layerRules(modulePath string) []rule {
	in := func(p string) string { return modulePath + "/internal/" + p }
	outer := []string{in("app"), in("cli"), in("http"), in("ingestion/")}
	return []rule{
		{dir: "internal/platform/", banned: []string{in("domain/"), in("data/"), in("services"), in("realtime"), in("http"), in("app")}},
		{dir: "internal/domain/", banned: append([]string{in("data/"), in("loomstate"), in("services"), in("realtime"), in("reports")}, outer...)},
		{dir: "internal/timebucket/", banned: []string{in("")}},
		{dir: "internal/accounting/", banned: append([]string{in("data/"), in("loomstate"), in("services"), in("realtime")}, outer...)},
		{dir: "internal/data/", banned: append([]string{in("loomstate"), in("services"), in("realtime"), in("reports")}, outer...)},
		{dir: "internal/loomstate/", banned: append([]string{in("services"), in("realtime"), in("reports")}, outer...)},
		{dir: "internal/realtime/", banned: append([]string{in("data/"), in("services"), in("loomstate")}, outer...)},
		{dir: "internal/services/", banned: append([]string{in("data/db"), in("data/store/sqlstore"), in("data/store/filestore")}, outer...)},
		{dir: "internal/reports/", banned: append([]string{in("data/db"), in("data/store/sqlstore"), in("data/store/filestore")}, outer...)},
		{dir: "internal/http/", banned: []string{in("app"), in("cli"), in("data/db"), in("data/store/sqlstore"), in("data/store/filestore")}},
	}
}

// Database drivers stay behind internal/data/db.
func driverRule() rule {
	return rule{dir: "internal/", banned: []string{"gorm.io/driver/", "github.com/jackc/pgx/v5/stdlib"}, external: true}
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	rules := append(layerRules(modulePath), driverRule())

	violations, err := scan(root, rules)
	require.NoError(t, err)
	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (banned: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func scan(root string, rules []rule) ([]violation, error) {
	fset := token.NewFileSet()
	var out []violation
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			for _, r := range rules {
				if !strings.HasPrefix(rel, r.dir) {
					continue
				}
				if r.external && strings.HasPrefix(rel, "internal/data/db/") {
					continue
				}
				for _, bad := range r.banned {
					if matches(imp, bad) {
						out = append(out, violation{file: rel, imp: imp, rule: bad})
					}
				}
			}
		}
		return nil
	})
	return out, err
}

// matches treats a trailing slash as "anything below", otherwise the
// package itself and its children.
func matches(imp, bad string) bool {
	if strings.HasSuffix(bad, "/") {
		return strings.HasPrefix(imp, bad)
	}
	return imp == bad || strings.HasPrefix(imp, bad+"/")
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		raw, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			mp := modfile.ModulePath(raw)
			require.NotEmpty(t, mp, "module path in %s", dir)
			return dir, mp
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "go.mod not found")
		dir = parent
	}
}

func TestMatches(t *testing.T) {
	require.True(t, matches("m/internal/http/handlers", "m/internal/http"))
	require.False(t, matches("m/internal/httpx", "m/internal/http"))
	require.True(t, matches("gorm.io/driver/sqlite", "gorm.io/driver/"))
}
