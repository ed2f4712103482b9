package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/huraaa/Agent-one/internal/docindex"
)

type fakeIndex struct {
	docs []docindex.Doc
	err  error
}

func (f *fakeIndex) Add(_ context.Context, docs []docindex.Doc) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.docs = append(f.docs, docs...)
	return len(docs), nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIngester_Files(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", strings.Repeat("a", 25))
	md := writeFile(t, dir, "guide.md", "# Guide\n\nShipping is **free**.\n\n## Returns\n\nReturn within 14 days.\n")

	idx := &fakeIndex{}
	in := New(idx, 10, 2, nil)
	stats, err := in.Files(context.Background(), []string{txt, md})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	// 25 chars with window 10, step 8: offsets 0, 8, 16, 24.
	if stats.Files != 2 || stats.Written != len(idx.docs) || stats.Chunks != len(idx.docs) {
		t.Errorf("stats = %+v, docs = %d", stats, len(idx.docs))
	}

	idPattern := regexp.MustCompile(`^notes\.txt-\d+-[0-9a-f]{6}$`)
	var txtDocs int
	for _, d := range idx.docs {
		if d.Source == txt {
			txtDocs++
			if !idPattern.MatchString(d.ID) {
				t.Errorf("id %q does not match <basename>-<i>-<hex6>", d.ID)
			}
		}
		if strings.Contains(d.Text, "**") {
			t.Errorf("markdown markup leaked into %q", d.Text)
		}
	}
	if txtDocs != 4 {
		t.Errorf("text file produced %d chunks, want 4", txtDocs)
	}
}

func TestIngester_DocsSequentialIDs(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "one two three four five six")

	in := New(&fakeIndex{}, 8, 0, nil)
	in.newID = func() string { return "abc123" }
	docs, err := in.Docs(p)
	if err != nil {
		t.Fatalf("Docs: %v", err)
	}
	for i, d := range docs {
		want := "a.txt-" + string(rune('0'+i)) + "-abc123"
		if d.ID != want {
			t.Errorf("doc %d id = %q, want %q", i, d.ID, want)
		}
	}
}

func TestIngester_MissingFile(t *testing.T) {
	idx := &fakeIndex{}
	_, err := New(idx, 0, 0, nil).Files(context.Background(), []string{filepath.Join(t.TempDir(), "nope.txt")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(idx.docs) != 0 {
		t.Error("nothing should be written when a file fails")
	}
}

func TestIngester_IndexError(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.txt", "content")
	want := errors.New("disk full")
	_, err := New(&fakeIndex{err: want}, 0, 0, nil).Files(context.Background(), []string{p})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestIngester_Defaults(t *testing.T) {
	in := New(&fakeIndex{}, 0, 0, nil)
	if in.maxChars != DefaultMaxChars || in.overlap != DefaultOverlap {
		t.Errorf("geometry = %d/%d, want %d/%d", in.maxChars, in.overlap, DefaultMaxChars, DefaultOverlap)
	}
}
