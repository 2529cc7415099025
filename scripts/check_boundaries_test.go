package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeSource(t *testing.T, root string, rel string, body string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCollectViolations(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "contexts/finance-core/banking-service/domain/valueobjects/money.go", `package valueobjects
import (
	"strings"
	"github.com/shopspring/decimal"
)
`)
	writeSource(t, root, "contexts/finance-core/banking-service/domain/entities/bad.go", `package entities
import "gorm.io/gorm"
`)
	writeSource(t, root, "contexts/finance-core/banking-service/application/commands/bad.go", `package commands
import (
	"unity/contexts/finance-core/banking-service/adapters/memory"
	"unity/contexts/identity-access/auth-service/ports"
	"unity/internal/platform/config"
)
`)
	writeSource(t, root, "contexts/finance-core/banking-service/application/commands/ok.go", `package commands
import (
	"unity/contracts/gen/events/v1"
	"unity/contexts/finance-core/banking-service/ports"
)
`)
	writeSource(t, root, "contexts/finance-core/banking-service/ports/ports.go", `package ports
import (
	"context"
	"unity/contexts/finance-core/banking-service/domain/entities"
	contractsv1 "unity/contracts/gen/events/v1"
)
`)
	writeSource(t, root, "contexts/finance-core/banking-service/ports/bad.go", `package ports
import "unity/contexts/finance-core/banking-service/application/commands"
`)
	writeSource(t, root, "contexts/finance-core/banking-service/transport/http/dto.go", `package http
import "time"
`)
	writeSource(t, root, "contexts/finance-core/banking-service/transport/http/bad.go", `package http
import "unity/contexts/finance-core/banking-service/domain/entities"
`)
	writeSource(t, root, "contexts/finance-core/banking-service/adapters/postgres/repo.go", `package postgresadapter
import (
	"gorm.io/gorm"
	"unity/contexts/identity-access/auth-service/domain/entities"
)
`)
	t.Chdir(root)

	got := map[string][]string{}
	for _, v := range collectViolations("contexts") {
		key := filepath.Base(filepath.Dir(v.File)) + "/" + filepath.Base(v.File)
		got[key] = append(got[key], v.Rule)
	}

	want := map[string][]string{
		"entities/bad.go": {"domain import not in layer policy"},
		"commands/bad.go": {
			"application depends on adapters",
			"application import not in layer policy",
			"reaches into another service",
			"application import not in layer policy",
			"application depends on process wiring",
			"application import not in layer policy",
		},
		"ports/bad.go":     {"ports import not in layer policy"},
		"http/bad.go":      {"transport import not in layer policy"},
		"postgres/repo.go": {"reaches into another service"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected violations in %d files, got %+v", len(want), got)
	}
	for file, rules := range want {
		if !slices.Equal(got[file], rules) {
			t.Fatalf("%s: expected %v, got %v", file, rules, got[file])
		}
	}
}
