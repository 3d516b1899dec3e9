package pdf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one file found in a work directory.
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Inventory is what a work directory holds: PDFs (estimates, templates and
// filled forms alike) and rule set documents.
type Inventory struct {
	Directory string     `json:"directory"`
	PDFs      []FileInfo `json:"pdfs"`
	RuleSets  []FileInfo `json:"rule_sets"`
	Truncated bool       `json:"truncated,omitempty"`
}

// Scanner walks work directories.
type Scanner struct {
	validator *Validator
	limit     int
}

// NewScanner creates a scanner that skips PDFs over maxFileSize and stops
// after limit matches. limit <= 0 means no limit.
func NewScanner(maxFileSize int64, limit int) *Scanner {
	return &Scanner{
		validator: NewValidator(maxFileSize),
		limit:     limit,
	}
}

// Scan lists the usable PDFs and rule set files below directory. Hidden
// directories are skipped, as are files whose real path leaves directory.
func (s *Scanner) Scan(directory string) (*Inventory, error) {
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}
	if _, err := os.Stat(absDirectory); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", directory)
	}
	realDirectory, err := filepath.EvalSymlinks(absDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate directory symlinks: %w", err)
	}

	inv := &Inventory{Directory: absDirectory}
	found := 0

	err = filepath.WalkDir(absDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absDirectory {
				return filepath.SkipDir
			}
			return nil
		}

		isPDF := isPDFName(d.Name())
		if !isPDF && !isRuleSetName(d.Name()) {
			return nil
		}

		if !within(path, realDirectory) {
			return nil
		}

		if s.limit > 0 && found >= s.limit {
			inv.Truncated = true
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // vanished while walking
		}

		entry := FileInfo{
			Path:         path,
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.DateTime),
		}
		if isPDF {
			if err := s.validator.checkInfo(path, info); err != nil {
				return nil //nolint:nilerr // unusable PDFs are not listed
			}
			inv.PDFs = append(inv.PDFs, entry)
		} else {
			inv.RuleSets = append(inv.RuleSets, entry)
		}
		found++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(inv.PDFs, func(i, j int) bool { return inv.PDFs[i].Path < inv.PDFs[j].Path })
	sort.Slice(inv.RuleSets, func(i, j int) bool { return inv.RuleSets[i].Path < inv.RuleSets[j].Path })
	return inv, nil
}

func isRuleSetName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// within reports whether path, after resolving symlinks, stays inside dir.
func within(path, dir string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
