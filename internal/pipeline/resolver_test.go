package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
)

func writeDocTree(t *testing.T) (docs, secret string) {
	t.Helper()
	dir := t.TempDir()
	docs = filepath.Join(dir, "docs")
	if err := os.MkdirAll(filepath.Join(docs, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docs, "sub", "a.txt"), []byte(shortDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	secret = filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(secret, []byte("hunter2"), 0o644); err != nil {
		t.Fatal(err)
	}
	return docs, secret
}

func TestFileResolver_ConfinedToBase(t *testing.T) {
	docs, secret := writeDocTree(t)
	r := FileResolver{Base: docs}

	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"nested", "sub/a.txt", false},
		{"dot segments inside", "sub/../sub/./a.txt", false},
		{"parent", "../secret.txt", true},
		{"climb through subdir", "sub/../../secret.txt", true},
		{"absolute", secret, true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := r.Resolve(context.Background(), tt.ref)
			if !tt.wantErr {
				if err != nil || text != shortDoc {
					t.Fatalf("Resolve(%q) = %q, %v", tt.ref, text, err)
				}
				return
			}
			if !errors.Is(err, config.ErrConfig) {
				t.Fatalf("Resolve(%q): expected ErrConfig, got %v", tt.ref, err)
			}
			if strings.Contains(text, "hunter2") {
				t.Errorf("Resolve(%q) leaked %q", tt.ref, text)
			}
		})
	}
}

func TestFileResolver_SymlinkOutOfBase(t *testing.T) {
	docs, secret := writeDocTree(t)
	if err := os.Symlink(secret, filepath.Join(docs, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	text, err := FileResolver{Base: docs}.Resolve(context.Background(), "link.txt")
	if err == nil || strings.Contains(text, "hunter2") {
		t.Fatalf("symlink escaped the root: %q, %v", text, err)
	}
}

func TestFileResolver_AllowOutside(t *testing.T) {
	docs, secret := writeDocTree(t)
	r := NewFileResolver(filepath.Join(docs, "queries.jsonl"))
	for _, ref := range []string{"../secret.txt", secret} {
		text, err := r.Resolve(context.Background(), ref)
		if err != nil || text != "hunter2" {
			t.Errorf("Resolve(%q) = %q, %v", ref, text, err)
		}
	}
}

func TestRunQuery_DocumentOutsideRootRejected(t *testing.T) {
	docs, _ := writeDocTree(t)
	p := newTestPipeline(t, confidentModel(), FileResolver{Base: docs}, nil)
	rec, err := p.RunQuery(context.Background(), Query{ID: "esc", DocumentReference: "../secret.txt", Question: "What?"})
	if !errors.Is(err, config.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if rec.Plan != nil || rec.TokensUsedTotal != 0 {
		t.Errorf("rejected query reached the reasoner: %+v", rec)
	}
}
