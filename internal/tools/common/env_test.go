package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadEnvFileLoadsAndPreservesExisting(t *testing.T) {
	t.Setenv("GATEWAY_SET_BEFORE", "process-wins")
	file := filepath.Join(t.TempDir(), "gateway.env")
	content := "# local overrides\nGATEWAY_SET_BEFORE=file-loses\nGATEWAY_FRESH=dock-7\nGATEWAY_QUOTED=\"spaced value\"\nDANGLING_TOKEN\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(file); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("GATEWAY_SET_BEFORE"); got != "process-wins" {
		t.Fatalf("expected existing var to be preserved, got %q", got)
	}
	if got := os.Getenv("GATEWAY_FRESH"); got != "dock-7" {
		t.Fatalf("unexpected GATEWAY_FRESH=%q", got)
	}
	if got := os.Getenv("GATEWAY_QUOTED"); got != "spaced value" {
		t.Fatalf("unexpected GATEWAY_QUOTED=%q", got)
	}
}

func TestLoadEnvFileOpenError(t *testing.T) {
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected error when path is a directory")
	}
}

func FuzzLoadEnvFileRobustness(f *testing.F) {
	f.Add([]byte("GATEWAY_PORT=4600\nGATEWAY_ENV=dev\n"))
	f.Add([]byte("DANGLING_TOKEN\n# local overrides\n SPACED = \"a b\" \n"))
	f.Add([]byte("EMOJI_🚚=配送\n"))
	f.Add([]byte("NO_VALUE\nTRUNC"))
	f.Add(bytes.Repeat([]byte("Z"), 65600))

	f.Fuzz(func(t *testing.T, content []byte) {
		if len(content) > 200000 {
			content = content[:200000]
		}

		file := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(file, content, 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}

		classify := func(err error) string {
			if err == nil {
				return "none"
			}
			msg := err.Error()
			switch {
			case strings.Contains(msg, "open env file:"):
				return "open"
			case strings.Contains(msg, "read env file:"):
				return "read"
			default:
				return "other"
			}
		}

		first := classify(LoadEnvFile(file))
		second := classify(LoadEnvFile(file))
		if first != second {
			t.Fatalf("error classification must be deterministic: first=%q second=%q", first, second)
		}
		if first == "other" {
			t.Fatalf("unexpected error class: %q", first)
		}
	})
}
