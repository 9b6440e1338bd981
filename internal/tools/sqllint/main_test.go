package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLintFileAndDuplicates(t *testing.T) {
	src := "package q\n\n" +
		"const QGood = `--sql 06fb7c4c-5b6c-4f6c-9e99-b65fdb159198\nselect 1;`\n" +
		"const QDup = `--sql 06fb7c4c-5b6c-4f6c-9e99-b65fdb159198\nselect 2;`\n" +
		"const QBare = \"select 3\"\n" +
		"const Label = \"not sql at all\"\n"
	path := filepath.Join(t.TempDir(), "q.go")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	queries, violations, err := lintFile(path)
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(queries))
	}
	if len(violations) != 1 || violations[0].name != "QBare" {
		t.Fatalf("violations = %+v", violations)
	}
	dups := duplicates(queries)
	if len(dups) != 1 || dups[0].name != "QDup" {
		t.Fatalf("duplicates = %+v", dups)
	}
}
