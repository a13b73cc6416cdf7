package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlMarkerPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	files, err := collect(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}

	var violations []violation
	seen := map[string]violation{}
	for _, path := range files {
		vs, err := lintFile(path, seen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		violations = append(violations, vs...)
	}

	if len(violations) == 0 {
		fmt.Printf("sqllint: %d files clean, %d queries\n", len(files), len(seen))
		return
	}
	fmt.Fprintf(os.Stderr, "sqllint: %d SQL audit marker problems\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(os.Stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
	}
	os.Exit(1)
}

// collect expands targets into a sorted list of Go files. Hidden, vendored
// and underscore-prefixed directories are skipped.
func collect(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".go") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// lintFile reports queries without a valid marker and markers already used
// by a query recorded in seen.
func lintFile(path string, seen map[string]violation) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	var violations []violation
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			head, text, ok := literalParts(value)
			if !ok || !sqlMarkerPattern.MatchString(text) {
				continue
			}
			pos := fset.Position(head.Pos())
			v := violation{file: path, line: pos.Line, name: joinNames(vs.Names)}
			raw, _ := unquote(head.Value)
			marker := firstLine(raw)
			if !uuidMarkerPattern.MatchString(marker) {
				v.message = "missing or invalid --sql <uuid> marker"
				violations = append(violations, v)
				continue
			}
			if prev, dup := seen[marker]; dup {
				v.message = fmt.Sprintf("marker reused from %s:%d (%s)", prev.file, prev.line, prev.name)
				violations = append(violations, v)
				continue
			}
			seen[marker] = v
		}
		return true
	})
	return violations, nil
}

// literalParts returns the leftmost string literal of a constant expression
// and the concatenation of all its literal parts. Identifiers in a
// concatenation contribute nothing to the text.
func literalParts(expr ast.Expr) (*ast.BasicLit, string, bool) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return nil, "", false
		}
		raw, err := unquote(e.Value)
		if err != nil {
			return nil, "", false
		}
		return e, raw, true
	case *ast.ParenExpr:
		return literalParts(e.X)
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return nil, "", false
		}
		head, left, ok := literalParts(e.X)
		if !ok {
			return nil, "", false
		}
		if _, right, ok := literalParts(e.Y); ok {
			left += right
		}
		return head, left, true
	}
	return nil, "", false
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
