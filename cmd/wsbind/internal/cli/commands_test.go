package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newWorkspace creates util (exports com.acme.util) and app (depends on
// util and on a bundle nobody exports).
func newWorkspace(t *testing.T, root string) string {
	t.Helper()
	writeFile(t, root, "util/bundle.yaml", "exports:\n  - name: com.acme.util\n    version: \"1.0.0\"\n    path: util.jar\n")
	writeFile(t, root, "app/bundle.yaml", "dependencies:\n  - name: com.acme.util\n    version: \"[1.0,2.0)\"\n  - name: com.acme.missing\n")
	return root
}

// execute runs the command tree and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if want := "wsbind " + Version + " (" + GitCommit + ")\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestResolveCmd(t *testing.T) {
	root := newWorkspace(t, t.TempDir())

	out, err := execute(t, "-C", root, "resolve")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	for _, want := range []string{
		"app\n",
		"com.acme.util 1.0.0 (util/util.jar, project util)",
		"com.acme.missing",
		"util\n  (no dependencies)",
		"resolved 2 projects, 1 problem",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, "app", ".wsbind.classpath"))
	if err != nil {
		t.Fatalf("classpath not written: %v", err)
	}
	if want := "util/util.jar\tutil\n"; string(data) != want {
		t.Errorf("classpath = %q, want %q", data, want)
	}
}

func TestResolveCmdJSON(t *testing.T) {
	root := newWorkspace(t, t.TempDir())

	out, err := execute(t, "-C", root, "resolve", "--json", "--dry-run")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	var got ResolveOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Root != root || got.Problems != 1 || len(got.Projects) != 2 {
		t.Errorf("output = %+v", got)
	}
	if got.Projects[0].Project != "app" || len(got.Projects[0].Bindings) != 1 {
		t.Errorf("app report = %+v", got.Projects[0])
	}

	if _, err := os.Stat(filepath.Join(root, "app", ".wsbind.classpath")); !os.IsNotExist(err) {
		t.Error("dry run wrote a classpath file")
	}
}

func TestResolveCmdStrict(t *testing.T) {
	root := newWorkspace(t, t.TempDir())
	_, err := execute(t, "-C", root, "resolve", "--dry-run", "--strict")
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("resolve --strict error = %v, want ErrUnresolved", err)
	}
}

func TestResolveCmdBrokenManifest(t *testing.T) {
	root := newWorkspace(t, t.TempDir())
	writeFile(t, root, "bad/bundle.yaml", "dependencies: [")

	out, err := execute(t, "-C", root, "resolve", "--dry-run")
	if err == nil {
		t.Error("resolve should fail on a broken manifest")
	}
	if !strings.Contains(out, "resolved 2 projects") {
		t.Errorf("remaining projects not reported:\n%s", out)
	}
}

func TestResolveCmdInvalidWorkspace(t *testing.T) {
	if _, err := execute(t, "-C", filepath.Join(t.TempDir(), "missing"), "resolve"); err == nil {
		t.Error("resolve in a missing directory should fail")
	}
}

func TestStatusCmd(t *testing.T) {
	root := newWorkspace(t, t.TempDir())

	out, err := execute(t, "-C", root, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No state found") {
		t.Errorf("status before resolve = %q", out)
	}

	if _, err := execute(t, "-C", root, "resolve"); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "-C", root, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Bindings are up to date") {
		t.Errorf("status after resolve = %q", out)
	}

	writeFile(t, root, "util/bundle.yaml", "exports:\n  - name: com.acme.util\n    version: \"1.10.0\"\n    path: util.jar\n")
	writeFile(t, root, "web/bundle.yaml", "")
	out, err = execute(t, "-C", root, "status", "--verbose")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Changed projects (2):", "  util\n", "  web\n", "~ util/bundle.yaml", "+ web/bundle.yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "-C", root, "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got StatusOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if !got.Stale || len(got.Projects) != 2 || len(got.ModifiedFiles) != 1 || len(got.NewFiles) != 1 {
		t.Errorf("status JSON = %+v", got)
	}
}

func TestExplainCmd(t *testing.T) {
	root := newWorkspace(t, t.TempDir())

	out, err := execute(t, "-C", root, "explain", "app")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "app: 1 unresolved") || !strings.Contains(out, "com.acme.missing") {
		t.Errorf("explain output:\n%s", out)
	}

	out, err = execute(t, "-C", root, "explain", "util")
	if err != nil {
		t.Fatal(err)
	}
	if want := "util: all 0 dependencies bound\n"; out != want {
		t.Errorf("explain util = %q, want %q", out, want)
	}

	if _, err := execute(t, "-C", root, "explain", "nope"); err == nil {
		t.Error("explain of an unknown project should fail")
	}
	if _, err := execute(t, "-C", root, "explain"); err == nil {
		t.Error("explain without a project should fail")
	}
}

func TestExplainCmdCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/bundle.yaml", "exports:\n  - name: a\n    version: \"1.0.0\"\n    path: a.jar\ndependencies:\n  - name: b\n")
	writeFile(t, root, "b/bundle.yaml", "exports:\n  - name: b\n    version: \"1.0.0\"\n    path: b.jar\ndependencies:\n  - name: a\n")

	out, err := execute(t, "-C", root, "explain", "b", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var report workspace.ProjectReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(report.Problems) != 1 || len(report.Problems[0].Rejections) != 1 {
		t.Fatalf("report = %+v", report)
	}
	rej := report.Problems[0].Rejections[0]
	if !rej.Cycle || rej.Path != "a/a.jar" {
		t.Errorf("rejection = %+v, want cycle through a/a.jar", rej)
	}
}

func TestDaemonCmdsWithoutDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "cli")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	root := newWorkspace(t, dir)

	out, err := execute(t, "-C", root, "daemon", "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Daemon: not running") {
		t.Errorf("daemon status = %q", out)
	}

	out, err = execute(t, "-C", root, "daemon", "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var status DaemonStatusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatal(err)
	}
	if status.Running || status.SocketPath != filepath.Join(root, ".wsbind", "daemon.sock") {
		t.Errorf("daemon status JSON = %+v", status)
	}

	out, err = execute(t, "-C", root, "daemon", "stop")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Daemon not running\n" {
		t.Errorf("daemon stop = %q", out)
	}

	if _, err := execute(t, "-C", root, "daemon", "binding", "app"); err == nil || !strings.Contains(err.Error(), "daemon not running") {
		t.Errorf("daemon binding error = %v, want daemon not running", err)
	}
}
