package infra

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := ExtractMarker("\n  --sql 0ffa114a-7b8d-458d-ab8e-aea0ebaece1c\nselect 1;\n")
	if err != nil {
		t.Fatalf("ExtractMarker: %v", err)
	}
	if marker != "0ffa114a-7b8d-458d-ab8e-aea0ebaece1c" {
		t.Fatalf("marker = %q", marker)
	}
	if strings.TrimSpace(body) != "select 1;" {
		t.Fatalf("body = %q", body)
	}

	for _, q := range []string{
		"",
		"select 1;",
		"--sql not-a-uuid\nselect 1;",
		"-- sql 0ffa114a-7b8d-458d-ab8e-aea0ebaece1c\nselect 1;",
	} {
		if _, _, err := ExtractMarker(q); !errors.Is(err, ErrMissingMarker) {
			t.Fatalf("ExtractMarker(%q) err = %v", q, err)
		}
	}
}

func TestSQLRunnerRejectsUnmarkedQueries(t *testing.T) {
	r := &SQLRunner{}
	if _, err := r.Exec(context.Background(), "delete from sessions"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Exec err = %v", err)
	}
	if err := r.QueryRow(context.Background(), "select 1").Scan(); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("QueryRow err = %v", err)
	}
	if _, err := r.Query(context.Background(), "select 1"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Query err = %v", err)
	}
}
