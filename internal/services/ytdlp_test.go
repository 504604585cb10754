package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCookieSource(t *testing.T) {
	t.Run("empty source yields no path", func(t *testing.T) {
		path, cleanup, err := CookieSource{}.Materialize()
		defer cleanup()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "" {
			t.Errorf("expected empty path, got %s", path)
		}
	})

	t.Run("path source passes through", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "cookies.txt")
		if err := os.WriteFile(f, []byte("# Netscape HTTP Cookie File\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		path, cleanup, err := CookieSource{Path: f}.Materialize()
		defer cleanup()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != f {
			t.Errorf("expected %s, got %s", f, path)
		}
	})

	t.Run("missing path errors", func(t *testing.T) {
		_, cleanup, err := CookieSource{Path: "/nonexistent/cookies.txt"}.Materialize()
		defer cleanup()
		if err == nil {
			t.Error("expected an error for a missing cookies file")
		}
	})

	t.Run("base64 source writes and cleans up a temp file", func(t *testing.T) {
		content := "# Netscape HTTP Cookie File\n.youtube.com\tTRUE\t/\tTRUE\t0\tSID\tabc\n"
		src := CookieSource{Base64: base64.StdEncoding.EncodeToString([]byte(content))}

		path, cleanup, err := src.Materialize()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path == "" {
			t.Fatal("expected a materialized path")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("could not read materialized file: %v", err)
		}
		if string(data) != content {
			t.Errorf("materialized content mismatch")
		}

		cleanup()
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected cleanup to remove the temp file")
		}
	})

	t.Run("invalid base64 errors", func(t *testing.T) {
		_, cleanup, err := CookieSource{Base64: "!!not base64!!"}.Materialize()
		defer cleanup()
		if err == nil {
			t.Error("expected an error for invalid base64")
		}
	})

	t.Run("path wins over base64", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "cookies.txt")
		if err := os.WriteFile(f, []byte("file"), 0o644); err != nil {
			t.Fatal(err)
		}

		path, cleanup, err := CookieSource{Path: f, Base64: "aWdub3JlZA=="}.Materialize()
		defer cleanup()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != f {
			t.Errorf("expected the file path to win, got %s", path)
		}
	})
}

// fakeYTDLP writes a shell script that mimics yt-dlp: emits --print-json
// metadata on stdout and drops an mp3 in the output directory.
func fakeYTDLP(t *testing.T, exitCode int) string {
	t.Helper()

	script := fmt.Sprintf(`#!/bin/sh
out=""
while [ $# -gt 1 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
if [ %d -ne 0 ]; then
  echo "ERROR: simulated failure" >&2
  exit %d
fi
dir=$(dirname "$out")
printf 'audio' > "$dir/dQw4w9WgXcQ.mp3"
echo '{"id":"dQw4w9WgXcQ","title":"Believer","uploader":"Imagine Dragons","thumbnail":"https://example.com/t.jpg","duration":204.1}'
`, exitCode, exitCode)

	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYTDLPDownload(t *testing.T) {
	t.Run("downloads and parses metadata", func(t *testing.T) {
		d := NewYTDLPDownloader(CookieSource{}, t.TempDir(), nil)
		d.SetBinary(fakeYTDLP(t, 0))

		path, meta, err := d.Download(context.Background(), "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer os.RemoveAll(filepath.Dir(path))

		if !strings.HasSuffix(path, "dQw4w9WgXcQ.mp3") {
			t.Errorf("unexpected audio path %s", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected the audio file to exist: %v", err)
		}
		if meta.Title != "Believer" || meta.Artist != "Imagine Dragons" {
			t.Errorf("unexpected metadata: %+v", meta)
		}
		if meta.Duration != 204 {
			t.Errorf("expected duration 204, got %d", meta.Duration)
		}
	})

	t.Run("surfaces stderr on failure", func(t *testing.T) {
		d := NewYTDLPDownloader(CookieSource{}, t.TempDir(), nil)
		d.SetBinary(fakeYTDLP(t, 1))

		_, _, err := d.Download(context.Background(), "dQw4w9WgXcQ")
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), "simulated failure") {
			t.Errorf("expected stderr in the error, got: %v", err)
		}
	})

	t.Run("errors when no mp3 is produced", func(t *testing.T) {
		script := `#!/bin/sh
echo '{}'
`
		bin := filepath.Join(t.TempDir(), "yt-dlp")
		if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
			t.Fatal(err)
		}

		d := NewYTDLPDownloader(CookieSource{}, t.TempDir(), nil)
		d.SetBinary(bin)

		if _, _, err := d.Download(context.Background(), "dQw4w9WgXcQ"); err == nil {
			t.Error("expected an error when no file is produced")
		}
	})
}
