// Package testutil provides reusable helpers for tests that need a project
// directory on disk.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestProject represents a temporary project for testing.
type TestProject struct {
	Path   string
	t      *testing.T
	config string
	files  map[string]string
}

// NewTestProject creates a new test project builder.
// Call Build() to create the actual directory.
func NewTestProject(t *testing.T) *TestProject {
	t.Helper()
	return &TestProject{
		t:     t,
		files: make(map[string]string),
	}
}

// WithConfig sets the assetcat.yaml content.
func (p *TestProject) WithConfig(yaml string) *TestProject {
	p.config = yaml
	return p
}

// WithFile adds a file. The path is relative to the project root.
func (p *TestProject) WithFile(path, content string) *TestProject {
	p.files[path] = content
	return p
}

// WithAsset adds an asset file and, when container is not uuid.Nil, its
// meta file.
func (p *TestProject) WithAsset(path string, container uuid.UUID, content string) *TestProject {
	p.files[path] = content
	if container != uuid.Nil {
		p.files[path+".meta"] = MetaContent(container)
	}
	return p
}

// Build creates the project directory and all configured files.
func (p *TestProject) Build() *TestProject {
	p.t.Helper()
	p.Path = p.t.TempDir()
	if p.config != "" {
		p.WriteFile("assetcat.yaml", p.config)
	}
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.WriteFile(name, p.files[name])
	}
	return p
}

// Abs returns the absolute path of relPath.
func (p *TestProject) Abs(relPath string) string {
	return filepath.Join(p.Path, filepath.FromSlash(relPath))
}

// WriteFile writes a file, creating directories as needed.
func (p *TestProject) WriteFile(relPath, content string) {
	p.t.Helper()
	fullPath := p.Abs(relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		p.t.Fatalf("failed to create directory for %s: %v", relPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		p.t.Fatalf("failed to write file %s: %v", relPath, err)
	}
}

// ReadFile reads a file from the project.
func (p *TestProject) ReadFile(relPath string) string {
	p.t.Helper()
	content, err := os.ReadFile(p.Abs(relPath))
	if err != nil {
		p.t.Fatalf("failed to read file %s: %v", relPath, err)
	}
	return string(content)
}

// FileExists reports whether relPath exists.
func (p *TestProject) FileExists(relPath string) bool {
	_, err := os.Stat(p.Abs(relPath))
	return err == nil
}

// Rename moves an asset together with its meta file.
func (p *TestProject) Rename(oldRel, newRel string) {
	p.t.Helper()
	for _, suffix := range []string{"", ".meta"} {
		src, dst := p.Abs(oldRel+suffix), p.Abs(newRel+suffix)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			p.t.Fatalf("failed to create directory for %s: %v", newRel, err)
		}
		if err := os.Rename(src, dst); err != nil && !(suffix != "" && os.IsNotExist(err)) {
			p.t.Fatalf("failed to rename %s: %v", oldRel+suffix, err)
		}
	}
}

// Copy duplicates an asset together with its meta file.
func (p *TestProject) Copy(srcRel, dstRel string) {
	p.t.Helper()
	p.WriteFile(dstRel, p.ReadFile(srcRel))
	if p.FileExists(srcRel + ".meta") {
		p.WriteFile(dstRel+".meta", p.ReadFile(srcRel+".meta"))
	}
}

// Remove deletes an asset together with its meta file.
func (p *TestProject) Remove(relPath string) {
	p.t.Helper()
	for _, suffix := range []string{"", ".meta"} {
		if err := os.Remove(p.Abs(relPath + suffix)); err != nil && !os.IsNotExist(err) {
			p.t.Fatalf("failed to remove %s: %v", relPath+suffix, err)
		}
	}
}

// AssertFileContains fails the test if the file does not contain substr.
func (p *TestProject) AssertFileContains(relPath, substr string) {
	p.t.Helper()
	content := p.ReadFile(relPath)
	if !strings.Contains(content, substr) {
		p.t.Errorf("expected file %s to contain %q, got:\n%s", relPath, substr, content)
	}
}

// AssertFileNotContains fails the test if the file contains substr.
func (p *TestProject) AssertFileNotContains(relPath, substr string) {
	p.t.Helper()
	content := p.ReadFile(relPath)
	if strings.Contains(content, substr) {
		p.t.Errorf("expected file %s to not contain %q, got:\n%s", relPath, substr, content)
	}
}

// MetaContent returns the meta file body for container.
func MetaContent(container uuid.UUID) string {
	return fmt.Sprintf("guid: %s\n", strings.ReplaceAll(container.String(), "-", ""))
}

// Asset returns a minimal asset body.
func Asset(kind, name string) string {
	return fmt.Sprintf("kind: %s\nname: %s\n", kind, name)
}
