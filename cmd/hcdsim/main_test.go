package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/softhcd/pkg"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--plain"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "hcdsim ") {
		t.Errorf("output = %q", out)
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"all", nil, []string{"otg-fs", "otg-hs", "drd-fs-db"}, nil},
		{"variant", []string{"--variant", "drd"}, []string{"drd-fs", "bulk-db"}, []string{"otg-fs"}},
		{"chip", []string{"--chip", "stm32u545"}, []string{"drd-fs-db"}, []string{"otg-hs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"profiles"}, tt.args...)...)
			if err != nil {
				t.Fatalf("profiles error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output contains %q:\n%s", w, out)
				}
			}
		})
	}

	if _, err := execute(t, "profiles", "--variant", "ehci"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("bad variant error = %v", err)
	}
}

func TestRun(t *testing.T) {
	glob := filepath.Join("..", "..", "scenario", "testdata", "*.yaml")
	out, err := execute(t, "run", "-j", "2", glob)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "otg-bulk-in") || !strings.Contains(out, " 0 failed") {
		t.Errorf("output = %s", out)
	}
}

func TestRun_Profiles(t *testing.T) {
	dir := t.TempDir()
	cpu, mem := filepath.Join(dir, "cpu.prof"), filepath.Join(dir, "mem.prof")
	script := filepath.Join("..", "..", "scenario", "testdata", "otg-control.yaml")
	if out, err := execute(t, "run", "--cpuprofile", cpu, "--memprofile", mem, script); err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	for _, p := range []string{cpu, mem} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("profile not written: %v", err)
		}
	}
}

func TestRun_Failing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fail.yaml")
	script := "name: fail\nprofile: otg-fs\nexpect:\n  - {ch: 0, urb: done}\n"
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "run", "-v", path)
	if !errors.Is(err, errFailed) {
		t.Errorf("run error = %v, want errFailed", err)
	}
	if !strings.Contains(out, statusFail) || !strings.Contains(out, "ch 0 urb") {
		t.Errorf("output = %s", out)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := execute(t, "run", "nothing-*.yaml"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("empty glob error = %v", err)
	}
	if _, err := execute(t, "run", "missing.yaml"); err == nil {
		t.Error("missing file succeeded")
	}
	if _, err := execute(t, "--log-level", "loud", "version"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("bad log level error = %v", err)
	}
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hcdsim.log")
	t.Cleanup(func() {
		pkg.SetLogOutput(nil, pkg.LogFormatText)
		pkg.SetLogLevel(slog.LevelWarn)
	})
	if _, err := execute(t, "--log-level", "debug", "--log-format", "json", "--log-file", path, "version"); err != nil {
		t.Fatalf("error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"component":"cli"`) {
		t.Errorf("log = %s", data)
	}
}
