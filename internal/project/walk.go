package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aidanlsb/assetcat/internal/paths"
)

// walkAssets calls fn with the project-relative path of every asset file
// under roots, in sorted order. It:
// - skips hidden directories and the state directory
// - only reports "*.asset" files
// - ignores roots that do not exist
func walkAssets(projectRoot string, roots []string, fn func(rel string) error) error {
	var found []string
	seen := make(map[string]bool)
	for _, r := range roots {
		dir := filepath.Join(projectRoot, filepath.FromSlash(strings.TrimSuffix(paths.NormalizeDirRoot(r), "/")))
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if p != dir && (strings.HasPrefix(name, ".") || name == StateDir) {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(p, AssetExt) {
				return nil
			}
			rel, err := filepath.Rel(projectRoot, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				found = append(found, rel)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	sort.Strings(found)
	for _, rel := range found {
		if err := fn(rel); err != nil {
			return err
		}
	}
	return nil
}
