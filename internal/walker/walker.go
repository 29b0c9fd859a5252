// Package walker enumerates the filesystem roots that are the source of
// truth for document content.
package walker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFileSize is the maximum file size to process (1 MB).
const DefaultMaxFileSize int64 = 1 << 20

// DefaultExtensions are ingested when a root sets neither Include nor
// Extensions.
var DefaultExtensions = []string{".txt", ".md", ".json", ".csv"}

// idNamespace scopes document ids derived from paths.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docindex:document"))

// ErrSkipped reports a path that exists but is not ingested: filtered out,
// too large, binary, or outside every root.
var ErrSkipped = errors.New("path not ingested")

// Root maps one directory tree to a collection.
type Root struct {
	Path       string
	Collection string
	Include    []string
	Exclude    []string
	Extensions []string
}

// Entry is one ingestible file.
type Entry struct {
	ID          string
	Path        string // Absolute path on disk.
	RelPath     string // Slash-separated path relative to the root.
	Collection  string
	Content     string
	ContentHash string // SHA-256 hex digest of Content.
	Size        int64
	ModTime     time.Time
}

// Source scans a fixed set of roots.
type Source struct {
	roots       []Root
	maxFileSize int64
}

// NewSource resolves the root paths. maxFileSize <= 0 uses the default.
func NewSource(roots []Root, maxFileSize int64) (*Source, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	resolved := make([]Root, len(roots))
	feeds := make(map[string]string, len(roots))
	for i, r := range roots {
		if r.Collection == "" {
			return nil, fmt.Errorf("walker: root %s has no collection", r.Path)
		}
		if other, ok := feeds[r.Collection]; ok {
			return nil, fmt.Errorf("walker: roots %s and %s both feed collection %s", other, r.Path, r.Collection)
		}
		feeds[r.Collection] = r.Path
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			return nil, fmt.Errorf("walker: resolve root %s: %w", r.Path, err)
		}
		r.Path = abs
		resolved[i] = r
	}
	return &Source{roots: resolved, maxFileSize: maxFileSize}, nil
}

// Roots returns the resolved roots.
func (s *Source) Roots() []Root {
	return s.roots
}

// Covers reports whether some root feeds collection.
func (s *Source) Covers(collection string) bool {
	for _, r := range s.roots {
		if r.Collection == collection {
			return true
		}
	}
	return false
}

// Collections returns the distinct collections fed by the roots, in
// configuration order.
func (s *Source) Collections() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range s.roots {
		if !seen[r.Collection] {
			seen[r.Collection] = true
			out = append(out, r.Collection)
		}
	}
	return out
}

// ID derives the stable document id of a file.
func ID(collection, relPath string) string {
	return uuid.NewSHA1(idNamespace, []byte(collection+":"+filepath.ToSlash(relPath))).String()
}

// Scan walks every root. It is lazy: files are read as the caller pulls
// them, and a new call starts over. Unreadable files are yielded as
// errors and the walk continues; a cancelled context ends it.
func (s *Source) Scan(ctx context.Context) iter.Seq2[Entry, error] {
	return s.scan(ctx, s.roots)
}

// ScanCollection walks only the roots feeding collection.
func (s *Source) ScanCollection(ctx context.Context, collection string) iter.Seq2[Entry, error] {
	var roots []Root
	for _, r := range s.roots {
		if r.Collection == collection {
			roots = append(roots, r)
		}
	}
	return s.scan(ctx, roots)
}

func (s *Source) scan(ctx context.Context, roots []Root) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, root := range roots {
			if !s.walkRoot(ctx, root, yield) {
				return
			}
		}
	}
}

// walkRoot returns false when the caller stopped or ctx ended.
func (s *Source) walkRoot(ctx context.Context, root Root, yield func(Entry, error) bool) bool {
	if _, err := os.Stat(root.Path); err != nil {
		return yield(Entry{}, fmt.Errorf("walker: root %s: %w", root.Path, err))
	}

	gitignorePatterns := loadGitignore(filepath.Join(root.Path, ".gitignore"))
	stopped := false

	err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if !yield(Entry{}, fmt.Errorf("walker: %s: %w", path, walkErr)) {
				stopped = true
				return fs.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root.Path && shouldExcludeDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root.Path, path)
		if err != nil {
			return nil
		}
		if matchesGitignore(relPath, gitignorePatterns) || !root.accepts(relPath) {
			return nil
		}

		entry, err := s.read(root, path, relPath)
		if errors.Is(err, ErrSkipped) {
			return nil
		}
		if !yield(entry, err) {
			stopped = true
			return fs.SkipAll
		}
		return nil
	})

	if err != nil {
		yield(Entry{}, fmt.Errorf("walker: traversal of %s: %w", root.Path, err))
		return false
	}
	return !stopped
}

// Read loads the file at path when some root accepts it. A path outside
// every root, or one the filters reject, yields ErrSkipped.
func (s *Source) Read(path string) (Entry, error) {
	root, relPath, ok := s.Locate(path)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrSkipped, path)
	}
	if matchesGitignore(relPath, loadGitignore(filepath.Join(root.Path, ".gitignore"))) || !root.accepts(relPath) {
		return Entry{}, fmt.Errorf("%w: %s", ErrSkipped, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, err
	}
	return s.read(root, abs, relPath)
}

// Locate finds the root containing path and the path relative to it.
func (s *Source) Locate(path string) (Root, string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Root{}, "", false
	}
	for _, r := range s.roots {
		rel, err := filepath.Rel(r.Path, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			continue
		}
		for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
			if shouldExcludeDir(part) {
				return Root{}, "", false
			}
		}
		return r, rel, true
	}
	return Root{}, "", false
}

func (s *Source) read(root Root, path, relPath string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("walker: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() || info.Size() > s.maxFileSize {
		return Entry{}, ErrSkipped
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("walker: read %s: %w", path, err)
	}
	if isBinary(data) {
		return Entry{}, ErrSkipped
	}

	sum := sha256.Sum256(data)
	rel := filepath.ToSlash(relPath)
	return Entry{
		ID:          ID(root.Collection, rel),
		Path:        path,
		RelPath:     rel,
		Collection:  root.Collection,
		Content:     string(data),
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

// accepts applies the root's include, exclude and extension filters.
func (r Root) accepts(relPath string) bool {
	if len(r.Include) > 0 {
		if !MatchesInclude(relPath, r.Include) {
			return false
		}
	} else if !hasExtension(relPath, r.Extensions) {
		return false
	}
	return !MatchesExclude(relPath, r.Exclude)
}

func hasExtension(relPath string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// isBinary checks the first 512 bytes for NUL, which is a simple but
// effective heuristic for binary content.
func isBinary(data []byte) bool {
	n := min(len(data), 512)
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

// loadGitignore reads a .gitignore file and returns its non-empty,
// non-comment lines as patterns.
func loadGitignore(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesGitignore checks if a relative path matches any gitignore pattern.
func matchesGitignore(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimSuffix(pattern, "/")

		if strings.Contains(pattern, "/") {
			if matched, _ := filepath.Match(strings.TrimPrefix(pattern, "/"), normalized); matched {
				return true
			}
			continue
		}

		// Without a slash the pattern matches any component; directory-only
		// patterns never match the file name itself.
		parts := strings.Split(normalized, "/")
		for i, part := range parts {
			if dirOnly && i == len(parts)-1 {
				break
			}
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
