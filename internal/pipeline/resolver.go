package pipeline

// #region imports
import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
)

// #endregion

// #region resolver

// DocumentResolver turns a document_reference into raw text.
type DocumentResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// FileResolver reads documents from disk. Relative references resolve
// against Base. Unless AllowOutside is set, a reference must name a file
// under Base: absolute paths and paths climbing out with ".." are rejected
// with an error wrapping config.ErrConfig.
type FileResolver struct {
	Base         string
	AllowOutside bool
}

// NewFileResolver resolves relative to the directory holding queryFile.
// Query files are operator input, so they may point anywhere.
func NewFileResolver(queryFile string) FileResolver {
	return FileResolver{Base: filepath.Dir(queryFile), AllowOutside: true}
}

func (r FileResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.AllowOutside {
		path := ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.Base, ref)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref, err)
		}
		return string(data), nil
	}

	rel, err := r.confine(ref)
	if err != nil {
		return "", err
	}
	// os.Root also refuses symlinks that lead out of Base.
	root, err := os.OpenRoot(r.base())
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	defer root.Close()
	data, err := root.ReadFile(rel)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return string(data), nil
}

func (r FileResolver) base() string {
	if r.Base == "" {
		return "."
	}
	return filepath.Clean(r.Base)
}

// confine returns ref relative to Base, or an ErrConfig error when it would
// leave Base.
func (r FileResolver) confine(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) || filepath.VolumeName(ref) != "" {
		return "", fmt.Errorf("%w: document reference %q must be relative to the document root", config.ErrConfig, ref)
	}
	base := r.base()
	rel, err := filepath.Rel(base, filepath.Join(base, ref))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: document reference %q escapes the document root", config.ErrConfig, ref)
	}
	return rel, nil
}

// MapResolver serves documents from memory.
type MapResolver map[string]string

func (r MapResolver) Resolve(_ context.Context, ref string) (string, error) {
	text, ok := r[ref]
	if !ok {
		return "", fmt.Errorf("resolve %s: %w", ref, os.ErrNotExist)
	}
	return text, nil
}

// #endregion resolver
