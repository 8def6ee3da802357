package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	modulePath   = "agora"
	mediatorPath = modulePath + "/internal/shared/mediator"
	mediatorDir  = "internal/shared/mediator"
)

// applicationLibraries are the third-party packages use cases may import.
// Drivers, brokers and HTTP stay in adapters.
var applicationLibraries = []string{
	"github.com/go-ozzo/ozzo-validation/v4",
	"golang.org/x/sync",
}

// layerAllowlists returns, per checked layer of a service, the import
// prefixes it may use besides the standard library. Layers not listed here
// (adapters, transport, the module root) are unrestricted.
var layerAllowlists = map[string]func(service string) []string{
	"domain": func(service string) []string {
		return []string{service + "/domain"}
	},
	"ports": func(service string) []string {
		return []string{service + "/domain", modulePath + "/contracts", mediatorPath}
	},
	"application": func(service string) []string {
		return append([]string{
			service + "/application",
			service + "/domain",
			service + "/ports",
			modulePath + "/contracts",
			mediatorPath,
		}, applicationLibraries...)
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	violations := collectViolations(".")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks the contexts tree and the shared mediator under root.
func collectViolations(root string) []violation {
	var violations []violation

	for _, dir := range []string{"contexts", mediatorDir} {
		_ = filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			violations = append(violations, checkFile(path, filepath.ToSlash(rel))...)
			return nil
		})
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})
	return violations
}

func checkFile(path string, rel string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: rel, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		if rule := importRule(rel, importPath); rule != "" {
			violations = append(violations, violation{File: rel, Line: line, Import: importPath, Rule: rule})
		}
	}
	return violations
}

// importRule names the rule importPath breaks when imported from the file at
// rel, or returns "" when the import is fine.
func importRule(rel string, importPath string) string {
	if strings.HasPrefix(rel, mediatorDir+"/") {
		if strings.HasPrefix(importPath, modulePath+"/") {
			return "mediator must not depend on module packages"
		}
		return ""
	}

	parts := strings.Split(rel, "/")
	if len(parts) < 4 || parts[0] != "contexts" {
		return ""
	}
	service := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
	layer := parts[3]

	if strings.HasPrefix(importPath, modulePath+"/contexts/") && !hasPrefix(importPath, service) {
		return "cross-module imports are forbidden"
	}
	allowlist, checked := layerAllowlists[layer]
	if !checked || isStdlib(importPath) || isAllowed(importPath, allowlist(service)) {
		return ""
	}
	switch {
	case strings.Contains(importPath, "/adapters/"):
		return layer + " must not import adapters"
	case hasPrefix(importPath, modulePath+"/internal"):
		return layer + " must not import runtime infrastructure"
	default:
		return layer + " import is outside explicit allowlist"
	}
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
