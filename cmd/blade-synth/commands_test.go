// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/config"
	"github.com/bladebuild/synth/internal/fastlink"
	"github.com/bladebuild/synth/internal/issue"
	blrt "github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/internal/staging"
	"github.com/bladebuild/synth/internal/testutil"
	"github.com/bladebuild/synth/pkg/pybin"
	"github.com/bladebuild/synth/pkg/pylib"
	"github.com/bladebuild/synth/pkg/resource"
	"github.com/bladebuild/synth/pkg/symbol"

	"github.com/klauspost/compress/zip"
)

func TestResourceFileCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "logo.txt")
	output := filepath.Join(dir, "logo.c")
	testutil.MustWriteFile(t, input, []byte("hi"), 0o644)

	res := runCLI(t, Dependencies{}, "resource-file", input, "-o", output)
	if res.err != nil {
		t.Fatalf("resource-file failed: %v\n%s", res.err, res.stderr)
	}

	got := string(testutil.MustReadFile(t, output))
	want := "RESOURCE_" + symbol.Name(input)
	if !strings.Contains(got, want) || !strings.Contains(got, want+"_len = 2;") {
		t.Errorf("generated source lacks %s:\n%s", want, got)
	}
}

func TestResourceFileCommandMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := filepath.Join(dir, "missing.c")

	res := runCLI(t, Dependencies{}, "resource-file", filepath.Join(dir, "missing.txt"), "-o", output)
	if code := exitCode(t, res.err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	summary := "failed while generating resource file: " + output
	if !strings.HasSuffix(res.stderr, summary+"\n") {
		t.Errorf("summary is not the last line:\n%s", res.stderr)
	}
	detail := strings.Index(res.stderr, "failed to encode resource")
	if detail < 0 {
		t.Fatalf("stderr lacks actionable error:\n%s", res.stderr)
	}
	if detail > strings.Index(res.stderr, summary) {
		t.Errorf("detail printed after the summary:\n%s", res.stderr)
	}
	if strings.Count(res.stderr, "failed to encode resource") != 1 {
		t.Errorf("detail printed more than once:\n%s", res.stderr)
	}
	if _, err := os.Stat(output); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output exists after failure: %v", err)
	}
}

func TestResourceIndexCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{
		"res/a.txt": "a",
		"res/b.txt": "bb",
	})
	header := filepath.Join(dir, "res.h")
	source := filepath.Join(dir, "res.c")

	res := runCLI(t, Dependencies{},
		"resource-index",
		"--source-path", dir,
		"--target-name", "res",
		"--header", header,
		"--source", source,
		filepath.Join(dir, "res/a.txt"), filepath.Join(dir, "res/b.txt"))
	if res.err != nil {
		t.Fatalf("resource-index failed: %v\n%s", res.err, res.stderr)
	}

	src := string(testutil.MustReadFile(t, source))
	if !strings.Contains(src, `"res/a.txt"`) || !strings.Contains(src, `"res/b.txt"`) {
		t.Errorf("index source lacks entries:\n%s", src)
	}
	if !strings.Contains(src, header) {
		t.Errorf("index source does not include %s:\n%s", header, src)
	}
	hdr := string(testutil.MustReadFile(t, header))
	if !strings.Contains(hdr, resource.IndexName(dir, "res")) {
		t.Errorf("header lacks index name:\n%s", hdr)
	}
}

func TestResourceIndexCommandUnwritableSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{
		"res/a.txt": "a",
		"blocker":   "not a directory",
	})
	header := filepath.Join(dir, "res.h")

	res := runCLI(t, Dependencies{},
		"resource-index",
		"--source-path", dir,
		"--target-name", "res",
		"--header", header,
		"--source", filepath.Join(dir, "blocker", "res.c"),
		filepath.Join(dir, "res/a.txt"))
	if code := exitCode(t, res.err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(res.stderr, "failed to generate resource index: res") {
		t.Errorf("stderr lacks context:\n%s", res.stderr)
	}
	if _, err := os.Stat(header); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("header published without its source: %v", err)
	}
}

func TestPythonCommands(t *testing.T) {
	dir := t.TempDir()
	defer testutil.MustChdir(t, dir)()

	testutil.WriteTree(t, dir, map[string]string{
		"src/app/__init__.py": "",
		"src/app/main.py":     "print('hi')\n",
		"tools/cli.py":        "",
	})

	res := runCLI(t, Dependencies{}, "py-library", "--base-dir", "src", "-o", "app.pylib", "src/app/__init__.py", "src/app/main.py")
	if res.err != nil {
		t.Fatalf("py-library failed: %v\n%s", res.err, res.stderr)
	}
	m, err := pylib.Read("app.pylib")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if m.BaseDir != "src" || len(m.Srcs) != 2 {
		t.Errorf("manifest = %+v", m)
	}

	res = runCLI(t, Dependencies{}, "py-binary", "--entry", "app.main", "-o", "app.par", "app.pylib", "tools/cli.py")
	if res.err != nil {
		t.Fatalf("py-binary failed: %v\n%s", res.err, res.stderr)
	}

	r, err := zip.OpenReader("app.par")
	if err != nil {
		t.Fatalf("OpenReader() failed: %v", err)
	}
	defer testutil.MustClose(t, r)

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	want := []string{"app/__init__.py", "app/main.py", "tools/cli.py", "tools/__init__.py", "__init__.py"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("archive entries = %v, want %v", names, want)
	}

	data := testutil.MustReadFile(t, "app.par")
	if stanza := pybin.Bootstrap(config.DefaultInterpreter, "app.main"); !strings.HasPrefix(string(data), stanza) {
		t.Errorf("archive does not start with %q", stanza)
	}
}

func TestPyBinaryDuplicatePolicyFromConfig(t *testing.T) {
	dir := t.TempDir()
	defer testutil.MustChdir(t, dir)()

	testutil.WriteTree(t, dir, map[string]string{
		"a/pkg/mod.py": "a",
		"b/pkg/mod.py": "b",
	})
	for _, lib := range []struct{ name, base string }{{"a.pylib", "a"}, {"b.pylib", "b"}} {
		res := runCLI(t, Dependencies{}, "py-library", "--base-dir", lib.base, "-o", lib.name, lib.base+"/pkg/mod.py")
		if res.err != nil {
			t.Fatalf("py-library %s failed: %v\n%s", lib.name, res.err, res.stderr)
		}
	}

	res := runCLI(t, Dependencies{}, "--verbose", "py-binary", "--entry", "pkg.mod", "-o", "rejected.par", "a.pylib", "b.pylib")
	if code := exitCode(t, res.err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !errors.Is(res.err, pybin.ErrDuplicateArcname) {
		t.Errorf("error = %v, want ErrDuplicateArcname", res.err)
	}
	if _, err := os.Stat("rejected.par"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("archive exists after failure: %v", err)
	}

	cfg := testConfig()
	cfg.Python.DuplicatePolicy = config.DuplicateOverride
	res = runCLI(t, Dependencies{Config: staticConfig{cfg: cfg}}, "py-binary", "--entry", "pkg.mod", "-o", "override.par", "a.pylib", "b.pylib")
	if res.err != nil {
		t.Fatalf("py-binary with override failed: %v\n%s", res.err, res.stderr)
	}
	if !strings.Contains(res.stderr, "pkg/mod.py") {
		t.Errorf("stderr lacks override warning:\n%s", res.stderr)
	}
}

func TestLinkCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "app")

	res := runCLI(t, Dependencies{}, "link", "--template", "echo 'warning: unused' >&2; echo $FL_SOURCE > $FL_TARGET", "-o", target, "a.o", "b.o")
	if res.err != nil {
		t.Fatalf("link failed: %v\n%s", res.err, res.stderr)
	}
	if got := string(testutil.MustReadFile(t, target)); got != "a.o b.o\n" {
		t.Errorf("target = %q", got)
	}
	if !strings.Contains(res.stderr, "warning: unused") {
		t.Errorf("warning not echoed on success:\n%s", res.stderr)
	}
}

func TestLinkCommandArgv(t *testing.T) {
	t.Parallel()

	t.Run("program after dash", func(t *testing.T) {
		t.Parallel()
		if runtime.GOOS == "windows" {
			t.Skip("cp is not a host program on windows")
		}
		obj := filepath.Join(t.TempDir(), "main.o")
		testutil.MustWriteFile(t, obj, []byte("object"), 0o644)
		target := filepath.Join(t.TempDir(), "app")

		res := runCLI(t, Dependencies{}, "link", "-o", target, obj, "--", "cp", "$FL_SOURCE", "$FL_TARGET")
		if res.err != nil {
			t.Fatalf("link failed: %v\n%s", res.err, res.stderr)
		}
		if got := string(testutil.MustReadFile(t, target)); got != "object" {
			t.Errorf("target = %q", got)
		}
	})

	t.Run("no command", func(t *testing.T) {
		t.Parallel()
		target := filepath.Join(t.TempDir(), "app")
		res := runCLI(t, Dependencies{}, "link", "-o", target, "main.o")
		if code := exitCode(t, res.err); code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		if !errors.Is(res.err, fastlink.ErrEmptyTemplate) {
			t.Errorf("error = %v, want ErrEmptyTemplate", res.err)
		}
	})

	t.Run("template and program", func(t *testing.T) {
		t.Parallel()
		target := filepath.Join(t.TempDir(), "app")
		res := runCLI(t, Dependencies{}, "link", "--template", "true", "-o", target, "main.o", "--", "true")
		if !errors.Is(res.err, fastlink.ErrAmbiguousCommand) {
			t.Errorf("error = %v, want ErrAmbiguousCommand", res.err)
		}
		if !strings.Contains(res.stderr, "prepare link command") {
			t.Errorf("stderr = %q", res.stderr)
		}
		if _, err := os.Stat(target); !os.IsNotExist(err) {
			t.Errorf("rejected link created %s", target)
		}
	})
}

func TestLinkCommandUnknownShell(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Shell = "fish"
	target := filepath.Join(t.TempDir(), "app")

	res := runCLI(t, Dependencies{Config: staticConfig{cfg: cfg}}, "link", "--template", "true", "-o", target, "main.o")
	if code := exitCode(t, res.err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !errors.Is(res.err, blrt.ErrInvalidShellType) {
		t.Errorf("error = %v, want ErrInvalidShellType", res.err)
	}
	if !strings.Contains(res.stderr, "failed to select link shell") {
		t.Errorf("stderr = %q", res.stderr)
	}
}

func TestLinkCommandFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "app")
	testutil.MustWriteFile(t, target, []byte("previous"), 0o755)

	res := runCLI(t, Dependencies{}, "link",
		"--template", "echo partial > $FL_TARGET; echo 'main.o: undefined reference to foo' >&2; exit 2",
		"-o", target, "main.o")
	if code := exitCode(t, res.err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	var toolErr *blrt.ToolError
	if !errors.As(res.err, &toolErr) || toolErr.ExitCode != 2 {
		t.Errorf("error = %v, want *ToolError with status 2", res.err)
	}
	lines := strings.Split(strings.TrimRight(res.stderr, "\n"), "\n")
	if len(lines) != 2 || lines[0] != "main.o: undefined reference to foo" || lines[1] != "failed while linking: "+target {
		t.Errorf("stderr = %q", res.stderr)
	}
	if got := string(testutil.MustReadFile(t, target)); got != "previous" {
		t.Errorf("target = %q, want previous content kept", got)
	}
}

func TestLinkCommandStaged(t *testing.T) {
	t.Parallel()

	stagingDir := t.TempDir()
	target := filepath.Join(t.TempDir(), "app")

	cfg := testConfig()
	cfg.FastLink.Enabled = true
	cfg.FastLink.StagingDir = stagingDir
	deps := Dependencies{
		Config: staticConfig{cfg: cfg},
		Prober: fakeProber{usage: staging.Usage{Ephemeral: true, Total: 100 << 20, Used: 10 << 20, Avail: 90 << 20}},
	}

	obj := filepath.Join(t.TempDir(), "main.o")
	testutil.MustWriteFile(t, obj, []byte("linked\n"), 0o644)

	res := runCLI(t, deps, "link", "--template", "cat $FL_SOURCE > $FL_TARGET", "-o", target, obj)
	if res.err != nil {
		t.Fatalf("link failed: %v\n%s", res.err, res.stderr)
	}
	if !strings.Contains(res.stderr, "fast link installed") {
		t.Errorf("stderr lacks install notice:\n%s", res.stderr)
	}
	if got := string(testutil.MustReadFile(t, target)); got != "linked\n" {
		t.Errorf("target = %q", got)
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not empty: %d entries", len(entries))
	}
}

func TestLinkCommandFollowsRecordedDecision(t *testing.T) {
	t.Parallel()

	newDeps := func(stagingDir, decisionFile string, usedPercent uint64) Dependencies {
		cfg := testConfig()
		cfg.FastLink.Enabled = true
		cfg.FastLink.StagingDir = stagingDir
		cfg.FastLink.DecisionFile = decisionFile
		return Dependencies{
			Config: staticConfig{cfg: cfg},
			Prober: fakeProber{usage: staging.Usage{
				Ephemeral: true,
				Total:     100 << 20,
				Used:      usedPercent << 20,
				Avail:     (100 - usedPercent) << 20,
			}},
		}
	}
	link := func(t *testing.T, deps Dependencies) cliResult {
		t.Helper()
		obj := filepath.Join(t.TempDir(), "main.o")
		testutil.MustWriteFile(t, obj, []byte("linked\n"), 0o644)
		target := filepath.Join(t.TempDir(), "app")
		res := runCLI(t, deps, "link", "--template", "cat $FL_SOURCE > $FL_TARGET", "-o", target, obj)
		if res.err != nil {
			t.Fatalf("link failed: %v\n%s", res.err, res.stderr)
		}
		if got := string(testutil.MustReadFile(t, target)); got != "linked\n" {
			t.Errorf("target = %q", got)
		}
		return res
	}

	t.Run("later links reuse the first decision", func(t *testing.T) {
		t.Parallel()
		stagingDir := t.TempDir()
		decisionFile := filepath.Join(t.TempDir(), ".fast_link")

		first := link(t, newDeps(stagingDir, decisionFile, 85))
		if !strings.Contains(first.stderr, "fast link installed") {
			t.Fatalf("first link not staged:\n%s", first.stderr)
		}

		second := link(t, newDeps(stagingDir, decisionFile, 95))
		if !strings.Contains(second.stderr, "fast link installed") || strings.Contains(second.stderr, "not installed") {
			t.Errorf("second link did not follow the recorded decision:\n%s", second.stderr)
		}
	})

	t.Run("emitted refusal applies to later links", func(t *testing.T) {
		t.Parallel()
		stagingDir := t.TempDir()
		decisionFile := filepath.Join(t.TempDir(), "build", ".fast_link")

		check := runCLI(t, newDeps(stagingDir, "", 95), "staging", "check", "--emit", decisionFile)
		if check.err != nil {
			t.Fatalf("staging check failed: %v\n%s", check.err, check.stderr)
		}
		if !strings.Contains(check.stdout, "fast link: not installed") {
			t.Errorf("stdout = %q", check.stdout)
		}

		res := link(t, newDeps(stagingDir, decisionFile, 10))
		if !strings.Contains(res.stderr, "fast link not installed") {
			t.Errorf("link ignored the emitted decision:\n%s", res.stderr)
		}
	})

	t.Run("emit replaces an earlier decision", func(t *testing.T) {
		t.Parallel()
		stagingDir := t.TempDir()
		decisionFile := filepath.Join(t.TempDir(), ".fast_link")

		for _, pct := range []uint64{95, 10} {
			if res := runCLI(t, newDeps(stagingDir, "", pct), "staging", "check", "--emit", decisionFile); res.err != nil {
				t.Fatalf("staging check at %d%% failed: %v", pct, res.err)
			}
		}
		d, err := staging.LoadDecision(decisionFile)
		if err != nil {
			t.Fatalf("LoadDecision() failed: %v", err)
		}
		if !d.Installed {
			t.Errorf("decision = %+v, want the latest emitted installation", d)
		}
	})
}

func TestLinkCommandInterrupted(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "app")

	res := runCLI(t, Dependencies{}, "link", "--template", "echo noisy >&2; exit 130", "-o", target, "main.o")
	if code := exitCode(t, res.err); code != blrt.ExitInterrupted {
		t.Fatalf("exit code = %d, want %d", code, blrt.ExitInterrupted)
	}
	if !errors.Is(res.err, blrt.ErrInterrupted) {
		t.Errorf("error = %v, want ErrInterrupted", res.err)
	}
	if res.stderr != "" {
		t.Errorf("stderr = %q, want nothing on interrupt", res.stderr)
	}
}

func TestStagingCheckCommand(t *testing.T) {
	t.Parallel()

	newDeps := func(usedPercent uint64) Dependencies {
		cfg := testConfig()
		cfg.FastLink.Enabled = true
		cfg.FastLink.StagingDir = "/dev/shm"
		return Dependencies{
			Config: staticConfig{cfg: cfg},
			Prober: fakeProber{usage: staging.Usage{
				Ephemeral: true,
				Total:     100 << 20,
				Used:      usedPercent << 20,
				Avail:     (100 - usedPercent) << 20,
			}},
		}
	}

	t.Run("installed", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, newDeps(10), "staging", "check", "--require")
		if res.err != nil {
			t.Fatalf("staging check failed: %v\n%s", res.err, res.stderr)
		}
		if !strings.Contains(res.stdout, "fast link: installed") || !strings.Contains(res.stdout, "(10%)") {
			t.Errorf("stdout = %q", res.stdout)
		}
	})

	t.Run("above high water", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, newDeps(95), "staging", "check")
		if res.err != nil {
			t.Fatalf("staging check failed: %v", res.err)
		}
		if !strings.Contains(res.stdout, "fast link: not installed") || !strings.Contains(res.stdout, "95% used") {
			t.Errorf("stdout = %q", res.stdout)
		}
	})

	t.Run("required", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, newDeps(95), "staging", "check", "--require")
		if code := exitCode(t, res.err); code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		if !errors.Is(res.err, staging.ErrStagingUnavailable) {
			t.Errorf("error = %v, want ErrStagingUnavailable", res.err)
		}
	})
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"collision", fmt.Errorf("wrap: %w", symbol.ErrSymbolCollision), issue.SymbolCollisionId},
		{"size mismatch", resource.ErrSizeMismatch, issue.ResourceSizeMismatchId},
		{"manifest", pylib.ErrInvalidManifest, issue.InvalidManifestId},
		{"base dir", pybin.ErrBaseDirMissing, issue.BaseDirMissingId},
		{"duplicate", pybin.ErrDuplicateArcname, issue.DuplicateArcnameId},
		{"staging", staging.ErrStagingUnavailable, issue.StagingUnavailableId},
		{"config", config.ErrInvalidConfig, issue.ConfigLoadFailedId},
		{"tool", &action.FailedError{Action: "linking", Target: "app", Err: &blrt.ToolError{Tool: "link", ExitCode: 1}}, issue.LinkFailedId},
		{"missing input", fs.ErrNotExist, issue.InputNotFoundId},
		{"explicit issue", issue.NewErrorContext().WithOperation("link").WithIssue(issue.LinkFailedId).Wrap(errors.New("x")).BuildError(), issue.LinkFailedId},
		{"unknown", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

