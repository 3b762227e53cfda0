package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, dir string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--backend", "file", "--dir", dir}, args...)
	code := run(full, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"VAR_PERSIST_CONFIG", "VAR_PERSIST_BACKEND", "VAR_PERSIST_DIR", "VAR_PERSIST_MAX_BYTES", "VAR_PERSIST_LOG_LEVEL"} {
		t.Setenv(name, "")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	if res := runCLI(t, dir, "set", "theme", `"light"`); res.code != exitOK {
		t.Fatalf("set: code %d stderr %q", res.code, res.stderr)
	}
	res := runCLI(t, dir, "get", "theme")
	if res.code != exitOK {
		t.Fatalf("get: code %d stderr %q", res.code, res.stderr)
	}
	if strings.TrimSpace(res.stdout) != `"light"` {
		t.Fatalf("expected stored JSON text, got %q", res.stdout)
	}
}

func TestSetRejectsInvalidJSON(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	res := runCLI(t, dir, "set", "theme", "light")
	if res.code != exitUsage {
		t.Fatalf("expected usage exit, got %d", res.code)
	}
	if !strings.Contains(res.stderr, "not valid JSON") {
		t.Fatalf("expected JSON complaint, got %q", res.stderr)
	}
	if res := runCLI(t, dir, "len"); strings.TrimSpace(res.stdout) != "0" {
		t.Fatalf("expected nothing stored, got %q", res.stdout)
	}
}

func TestGetMissingKey(t *testing.T) {
	isolateEnv(t)
	res := runCLI(t, t.TempDir(), "get", "absent")
	if res.code != exitError {
		t.Fatalf("expected error exit, got %d", res.code)
	}
	if !strings.Contains(res.stderr, "key not found") {
		t.Fatalf("expected not found message, got %q", res.stderr)
	}
}

func TestListLenRemoveClear(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	for _, kv := range [][2]string{{"a", "1"}, {"b", "[1,2]"}, {"c", `{"x":true}`}} {
		if res := runCLI(t, dir, "set", kv[0], kv[1]); res.code != exitOK {
			t.Fatalf("set %s: %q", kv[0], res.stderr)
		}
	}

	res := runCLI(t, dir, "ls")
	if got := strings.Fields(res.stdout); strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("unexpected keys %v", got)
	}

	if res := runCLI(t, dir, "rm", "b"); res.code != exitOK {
		t.Fatalf("rm: %q", res.stderr)
	}
	if res := runCLI(t, dir, "rm", "b"); res.code != exitOK {
		t.Fatalf("rm of missing key should be a no-op: %q", res.stderr)
	}
	if res := runCLI(t, dir, "len"); strings.TrimSpace(res.stdout) != "2" {
		t.Fatalf("expected 2 keys, got %q", res.stdout)
	}

	if res := runCLI(t, dir, "clear"); res.code != exitOK {
		t.Fatalf("clear: %q", res.stderr)
	}
	if res := runCLI(t, dir, "len"); strings.TrimSpace(res.stdout) != "0" {
		t.Fatalf("expected empty storage, got %q", res.stdout)
	}
}

func TestUsageErrors(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "no command", args: nil, want: "Usage:"},
		{name: "unknown command", args: []string{"frob"}, want: `unknown command "frob"`},
		{name: "missing argument", args: []string{"get"}, want: "usage: varpersist get KEY"},
		{name: "extra argument", args: []string{"len", "x"}, want: "usage: varpersist len"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, dir, tc.args...)
			if res.code != exitUsage {
				t.Fatalf("expected usage exit, got %d", res.code)
			}
			if !strings.Contains(res.stderr, tc.want) {
				t.Fatalf("expected %q in stderr, got %q", tc.want, res.stderr)
			}
		})
	}
}

func TestInvalidBackendFlag(t *testing.T) {
	isolateEnv(t)
	res := runCLI(t, t.TempDir(), "--backend", "punchcards", "ls")
	if res.code != exitUsage {
		t.Fatalf("expected usage exit, got %d", res.code)
	}
	if !strings.Contains(res.stderr, "invalid storage.backend") {
		t.Fatalf("expected backend validation error, got %q", res.stderr)
	}
}

func TestConfigFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  backend: bolt\n  dir: " + dataDir + "\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--config", path, "set", "n", "42"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("set: code %d stderr %q", code, stderr.String())
	}
	stdout.Reset()
	if code := run([]string{"--config", path, "get", "n"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("get: code %d stderr %q", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "42" {
		t.Fatalf("expected 42, got %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dataDir, "storage.bolt")); err != nil {
		t.Fatalf("expected bolt file under configured dir: %v", err)
	}
}
