package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voxbridge/internal/logging"
	"voxbridge/internal/testsupport"
)

func TestExpandDirectoryFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.MP3", "a.wav", "notes.txt", "c.flac"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 8)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.wav"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := ExpandDirectory(dir)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"a.wav", "b.MP3", "c.flac"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Fatalf("index %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestReadListResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	body := "# batch\n\nfirst.wav\n/abs/second.mp3\n"
	if err := os.WriteFile(list, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadList(list)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if len(got) != 2 || got[0] != filepath.Join(dir, "first.wav") || got[1] != "/abs/second.mp3" {
		t.Fatalf("unexpected paths %v", got)
	}
}

func TestTranscriptWriterAvoidsOverwrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	w := NewTranscriptWriter(out, logging.NewNop())

	w.JobFinished(Job{ID: "1", SourcePath: "/in/talk.wav", Status: StatusCompleted, Result: "one"})
	w.JobFinished(Job{ID: "2", SourcePath: "/other/talk.mp3", Status: StatusCompleted, Result: "two"})
	w.JobFinished(Job{ID: "3", SourcePath: "/in/bad.wav", Status: StatusFailed})

	first, ok := w.Written("1")
	if !ok || filepath.Base(first) != "talk.txt" {
		t.Fatalf("unexpected first path %q", first)
	}
	second, ok := w.Written("2")
	if !ok || filepath.Base(second) != "talk_2.txt" {
		t.Fatalf("unexpected second path %q", second)
	}
	if _, ok := w.Written("3"); ok {
		t.Fatal("failed jobs must not produce transcripts")
	}
	data, err := os.ReadFile(second)
	if err != nil || !strings.Contains(string(data), "two") {
		t.Fatalf("read second: %q %v", data, err)
	}
}
