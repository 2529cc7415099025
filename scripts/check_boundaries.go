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

const modulePath = "unity"

// layerPolicy lists what a service layer may import besides the standard library.
// Service-relative entries are resolved against the owning service package.
type layerPolicy struct {
	service   []string
	module    []string
	libraries []string
}

var layerPolicies = map[string]layerPolicy{
	"domain": {
		service:   []string{"domain"},
		libraries: []string{"github.com/shopspring/decimal", "golang.org/x/text"},
	},
	"ports": {
		service: []string{"domain", "ports"},
		module:  []string{"contracts"},
	},
	"application": {
		service: []string{"application", "domain", "ports"},
		module:  []string{"contracts"},
	},
	"transport": {
		service: []string{"transport"},
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("service boundaries ok")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})

	fmt.Printf("%d boundary violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s:%d %q: %s\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		// contexts/<context>/<service>/<layer or module.go>
		parts := strings.Split(filepath.ToSlash(path), "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}
		service := strings.Join([]string{modulePath, "contexts", parts[1], parts[2]}, "/")
		violations = append(violations, checkFile(path, service, parts[3])...)
		return nil
	})
	return violations
}

func checkFile(path string, service string, layer string) []violation {
	name := filepath.ToSlash(path)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: name, Line: 1, Rule: "unparseable source"}}
	}

	var violations []violation
	for _, spec := range file.Imports {
		imported := strings.Trim(spec.Path.Value, `"`)
		line := fset.Position(spec.Pos()).Line
		for _, rule := range importRules(imported, service, layer) {
			violations = append(violations, violation{File: name, Line: line, Import: imported, Rule: rule})
		}
	}
	return violations
}

// importRules returns every rule the import breaks for a file in layer.
// Layers without a policy (adapters) only get the cross-service check.
func importRules(imported string, service string, layer string) []string {
	var rules []string
	if strings.HasPrefix(imported, modulePath+"/contexts/") && !within(imported, service) {
		rules = append(rules, "reaches into another service")
	}

	policy, ok := layerPolicies[layer]
	if !ok {
		return rules
	}
	if strings.Contains(imported, "/adapters/") || strings.HasSuffix(imported, "/adapters") {
		rules = append(rules, layer+" depends on adapters")
	}
	if within(imported, modulePath+"/internal") || within(imported, modulePath+"/cmd") {
		rules = append(rules, layer+" depends on process wiring")
	}
	if !isStdlib(imported) && !policy.permits(imported, service) {
		rules = append(rules, layer+" import not in layer policy")
	}
	return rules
}

func (p layerPolicy) permits(imported string, service string) bool {
	for _, pkg := range p.service {
		if within(imported, service+"/"+pkg) {
			return true
		}
	}
	for _, pkg := range p.module {
		if within(imported, modulePath+"/"+pkg) {
			return true
		}
	}
	for _, lib := range p.libraries {
		if within(imported, lib) {
			return true
		}
	}
	return false
}

func within(path string, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// isStdlib treats any path whose first element has no dot as standard library.
func isStdlib(path string) bool {
	if within(path, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}
