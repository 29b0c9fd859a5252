package walker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newSource(t *testing.T, roots ...Root) *Source {
	t.Helper()
	src, err := NewSource(roots, 0)
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	return src
}

func collect(t *testing.T, src *Source) []Entry {
	t.Helper()
	var out []Entry
	for e, err := range src.Scan(context.Background()) {
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

func relPaths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelPath
	}
	return out
}

func TestScan_DefaultExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "notes", "b.md"), "# beta")
	writeFile(t, filepath.Join(dir, "data.json"), `{"k":1}`)
	writeFile(t, filepath.Join(dir, "rows.CSV"), "a,b")
	writeFile(t, filepath.Join(dir, "main.go"), "package main")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1"}))

	got := relPaths(entries)
	want := []string{"a.txt", "data.json", "notes/b.md", "rows.CSV"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScan_EntryFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "a.txt"), "hello world")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1"}))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]

	sum := sha256.Sum256([]byte("hello world"))
	if e.ContentHash != hex.EncodeToString(sum[:]) {
		t.Errorf("ContentHash = %s", e.ContentHash)
	}
	if e.Content != "hello world" {
		t.Errorf("Content = %q", e.Content)
	}
	if e.Collection != "c1" {
		t.Errorf("Collection = %q", e.Collection)
	}
	if e.RelPath != "sub/a.txt" {
		t.Errorf("RelPath = %q", e.RelPath)
	}
	if !filepath.IsAbs(e.Path) {
		t.Errorf("Path %q is not absolute", e.Path)
	}
	if e.ID != ID("c1", "sub/a.txt") {
		t.Errorf("ID = %q, want %q", e.ID, ID("c1", "sub/a.txt"))
	}
	if e.Size != int64(len("hello world")) || e.ModTime.IsZero() {
		t.Errorf("Size = %d, ModTime = %v", e.Size, e.ModTime)
	}
}

func TestID_Stable(t *testing.T) {
	a := ID("c1", "docs/a.txt")
	if a != ID("c1", "docs/a.txt") {
		t.Error("ID is not deterministic")
	}
	if a == ID("c2", "docs/a.txt") {
		t.Error("ID must differ across collections")
	}
	if a == ID("c1", "docs/b.txt") {
		t.Error("ID must differ across paths")
	}
}

func TestScan_IncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep", "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "keep", "deep", "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "keep", "drop.txt"), "c")
	writeFile(t, filepath.Join(dir, "other", "c.txt"), "d")

	entries := collect(t, newSource(t, Root{
		Path:       dir,
		Collection: "c1",
		Include:    []string{"keep/**"},
		Exclude:    []string{"drop.txt"},
	}))

	got := relPaths(entries)
	if len(got) != 2 || got[0] != "keep/a.txt" || got[1] != "keep/deep/b.txt" {
		t.Errorf("got %v", got)
	}
}

func TestScan_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.rst"), "b")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1", Extensions: []string{"rst"}}))
	if len(entries) != 1 || entries[0].RelPath != "b.rst" {
		t.Errorf("got %v", relPaths(entries))
	}
}

func TestScan_SkipsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.md"), "# Hello")
	writeFile(t, filepath.Join(dir, "blob.txt"), "abc\x00def")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1"}))
	if len(entries) != 1 || entries[0].RelPath != "readme.md" {
		t.Errorf("got %v", relPaths(entries))
	}
}

func TestScan_SkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.txt"), "small")
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'A'
	}
	writeFile(t, filepath.Join(dir, "big.txt"), string(big))

	src, err := NewSource([]Root{{Path: dir, Collection: "c1"}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	entries := collect(t, src)
	if len(entries) != 1 || entries[0].RelPath != "small.txt" {
		t.Errorf("got %v", relPaths(entries))
	}
}

func TestNewSourceRejectsSharedCollection(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(a, "readme.md"), "one")
	writeFile(t, filepath.Join(b, "readme.md"), "two")

	_, err := NewSource([]Root{{Path: a, Collection: "c1"}, {Path: b, Collection: "c1"}}, 0)
	if err == nil {
		t.Fatal("expected an error for two roots feeding one collection")
	}
	if !strings.Contains(err.Error(), "c1") {
		t.Errorf("error %q does not name the collection", err)
	}
}

func TestScan_DefaultExcludeDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"node_modules", ".git", "vendor", ".docindex"} {
		writeFile(t, filepath.Join(dir, d, "file.txt"), "content")
	}
	writeFile(t, filepath.Join(dir, "app.txt"), "x")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1"}))
	if len(entries) != 1 {
		t.Errorf("expected 1 file, got %v", relPaths(entries))
	}
}

func TestScan_Gitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "*.log.txt\nsecret.txt\nbuild-out/\n")
	writeFile(t, filepath.Join(dir, "app.txt"), "app")
	writeFile(t, filepath.Join(dir, "debug.log.txt"), "log data")
	writeFile(t, filepath.Join(dir, "secret.txt"), "password")
	writeFile(t, filepath.Join(dir, "build-out", "x.txt"), "generated")

	entries := collect(t, newSource(t, Root{Path: dir, Collection: "c1"}))
	if len(entries) != 1 || entries[0].RelPath != "app.txt" {
		t.Errorf("got %v", relPaths(entries))
	}
}

func TestScan_MultipleRootsAndCollections(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(a, "one.txt"), "1")
	writeFile(t, filepath.Join(b, "two.txt"), "2")

	src := newSource(t, Root{Path: a, Collection: "ca"}, Root{Path: b, Collection: "cb"})

	if got := src.Collections(); len(got) != 2 || got[0] != "ca" || got[1] != "cb" {
		t.Errorf("Collections() = %v", got)
	}
	if !src.Covers("ca") || src.Covers("zz") {
		t.Error("Covers() mismatch")
	}

	var n int
	for e, err := range src.ScanCollection(context.Background(), "cb") {
		if err != nil {
			t.Fatal(err)
		}
		if e.Collection != "cb" {
			t.Errorf("unexpected collection %q", e.Collection)
		}
		n++
	}
	if n != 1 {
		t.Errorf("ScanCollection yielded %d entries", n)
	}
}

func TestScan_Restartable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	src := newSource(t, Root{Path: dir, Collection: "c1"})

	if first, second := collect(t, src), collect(t, src); len(first) != 2 || len(second) != 2 {
		t.Errorf("scans yielded %d and %d entries", len(first), len(second))
	}
}

func TestScan_EarlyStop(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, filepath.Join(dir, name), name)
	}
	src := newSource(t, Root{Path: dir, Collection: "c1"})

	n := 0
	for range src.Scan(context.Background()) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after 1 entry, got %d", n)
	}
}

func TestScan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	src := newSource(t, Root{Path: dir, Collection: "c1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range src.Scan(ctx) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", gotErr)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	src := newSource(t, Root{Path: filepath.Join(t.TempDir(), "nope"), Collection: "c1"})

	var gotErr error
	for _, err := range src.Scan(context.Background()) {
		gotErr = err
	}
	if !errors.Is(gotErr, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", gotErr)
	}
}

func TestNewSource_RequiresCollection(t *testing.T) {
	if _, err := NewSource([]Root{{Path: t.TempDir()}}, 0); err == nil {
		t.Error("expected error for root without collection")
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "a.go"), "package a")
	src := newSource(t, Root{Path: dir, Collection: "c1"})

	e, err := src.Read(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if e.ID != ID("c1", "a.txt") || e.Content != "alpha" {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, err := src.Read(filepath.Join(dir, "a.go")); !errors.Is(err, ErrSkipped) {
		t.Errorf("filtered file: expected ErrSkipped, got %v", err)
	}
	if _, err := src.Read(filepath.Join(t.TempDir(), "x.txt")); !errors.Is(err, ErrSkipped) {
		t.Errorf("outside roots: expected ErrSkipped, got %v", err)
	}
	if _, err := src.Read(filepath.Join(dir, "gone.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: expected not-exist, got %v", err)
	}
}

func TestMatchesInclude(t *testing.T) {
	if !MatchesInclude("anything.txt", nil) {
		t.Error("empty include should match everything")
	}
	if !MatchesInclude("docs/a/b.md", []string{"docs/**/*.md"}) {
		t.Error("doublestar pattern should match")
	}
	if !MatchesInclude("deep/dir/notes.md", []string{"*.md"}) {
		t.Error("pattern should match the base name")
	}
	if MatchesInclude("a.txt", []string{"*.md"}) {
		t.Error("a.txt should not match *.md")
	}
}

func TestMatchesExclude(t *testing.T) {
	if MatchesExclude("a.txt", nil) {
		t.Error("empty exclude should match nothing")
	}
	if !MatchesExclude("tmp/a.txt", []string{"tmp/**"}) {
		t.Error("tmp/** should exclude tmp/a.txt")
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := ValidatePatterns([]string{"**/*.md", "a/*.txt"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePatterns([]string{"[unclosed"}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
