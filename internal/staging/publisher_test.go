// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{})
}

func writeProducer(content []byte) ProduceFunc {
	return func(_ context.Context, tmpPath string) error {
		return os.WriteFile(tmpPath, content, 0o644)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) failed: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPublishSuccess(t *testing.T) {
	t.Parallel()

	stageDir := t.TempDir()
	outDir := t.TempDir()
	target := filepath.Join(outDir, "sub", "app.bin")

	pub := NewPublisher(stageDir, quietLogger())
	want := []byte("linked program bytes")
	if err := pub.Publish(context.Background(), target, writeProducer(want)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("target not published: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("target content = %q, want %q", got, want)
	}
	if left := listDir(t, stageDir); len(left) != 0 {
		t.Errorf("staging dir not empty after publish: %v", left)
	}
}

func TestPublishNextToTarget(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	target := filepath.Join(outDir, "lib.so")

	pub := NewPublisher("", quietLogger())
	var staged string
	err := pub.Publish(context.Background(), target, func(_ context.Context, tmpPath string) error {
		staged = tmpPath
		return os.WriteFile(tmpPath, []byte("so"), 0o644)
	})
	if err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if filepath.Dir(staged) != outDir {
		t.Errorf("staged in %s, want %s", filepath.Dir(staged), outDir)
	}
	if names := listDir(t, outDir); len(names) != 1 || names[0] != "lib.so" {
		t.Errorf("output dir = %v, want only lib.so", names)
	}
}

func TestPublishFailureKeepsPreviousTarget(t *testing.T) {
	t.Parallel()

	t.Run("previous output survives", func(t *testing.T) {
		t.Parallel()
		stageDir := t.TempDir()
		target := filepath.Join(t.TempDir(), "app")
		previous := []byte("previous successful build")
		if err := os.WriteFile(target, previous, 0o755); err != nil {
			t.Fatal(err)
		}

		pub := NewPublisher(stageDir, quietLogger())
		toolErr := errors.New("ld returned 1 exit status")
		err := pub.Publish(context.Background(), target, func(_ context.Context, tmpPath string) error {
			// Leave a half-written artifact behind to make sure it never escapes.
			_ = os.WriteFile(tmpPath, []byte("trunc"), 0o644)
			return toolErr
		})
		if !errors.Is(err, ErrProduceFailed) {
			t.Fatalf("Publish() error = %v, want ErrProduceFailed", err)
		}
		if !errors.Is(err, toolErr) {
			t.Errorf("Publish() error does not wrap produce error: %v", err)
		}

		got, readErr := os.ReadFile(target)
		if readErr != nil {
			t.Fatalf("target disappeared: %v", readErr)
		}
		if !bytes.Equal(got, previous) {
			t.Errorf("target content changed to %q", got)
		}
		if left := listDir(t, stageDir); len(left) != 0 {
			t.Errorf("staged file not discarded: %v", left)
		}
	})

	t.Run("absent target stays absent", func(t *testing.T) {
		t.Parallel()
		target := filepath.Join(t.TempDir(), "never")
		pub := NewPublisher("", quietLogger())
		err := pub.Publish(context.Background(), target, func(context.Context, string) error {
			return errors.New("boom")
		})
		if err == nil {
			t.Fatal("Publish() expected error, got nil")
		}
		if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
			t.Errorf("target exists after failed publish: %v", statErr)
		}
		if left := listDir(t, filepath.Dir(target)); len(left) != 0 {
			t.Errorf("temporary files left next to target: %v", left)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		target := filepath.Join(t.TempDir(), "out")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := NewPublisher("", quietLogger()).Publish(ctx, target, func(context.Context, string) error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Publish() error = %v, want context.Canceled", err)
		}
		if called {
			t.Error("produce called with canceled context")
		}
	})
}

func TestPublishAll(t *testing.T) {
	t.Parallel()

	t.Run("promotes every output", func(t *testing.T) {
		t.Parallel()
		out := t.TempDir()
		header := filepath.Join(out, "gen", "index.h")
		source := filepath.Join(out, "gen", "index.c")

		err := NewPublisher(t.TempDir(), quietLogger()).PublishAll(context.Background(),
			Output{Target: header, Produce: writeProducer([]byte("h"))},
			Output{Target: source, Produce: writeProducer([]byte("c"))},
		)
		if err != nil {
			t.Fatalf("PublishAll() failed: %v", err)
		}
		for target, want := range map[string]string{header: "h", source: "c"} {
			got, readErr := os.ReadFile(target)
			if readErr != nil {
				t.Fatalf("ReadFile(%s) failed: %v", target, readErr)
			}
			if string(got) != want {
				t.Errorf("%s = %q, want %q", target, got, want)
			}
		}
	})

	t.Run("late failure keeps earlier targets", func(t *testing.T) {
		t.Parallel()
		stageDir := t.TempDir()
		out := t.TempDir()
		first := filepath.Join(out, "first")
		second := filepath.Join(out, "second")
		previous := []byte("previous first")
		if err := os.WriteFile(first, previous, 0o644); err != nil {
			t.Fatal(err)
		}

		toolErr := errors.New("generator crashed")
		err := NewPublisher(stageDir, quietLogger()).PublishAll(context.Background(),
			Output{Target: first, Produce: writeProducer([]byte("new first"))},
			Output{Target: second, Produce: func(context.Context, string) error { return toolErr }},
		)
		if !errors.Is(err, ErrProduceFailed) || !errors.Is(err, toolErr) {
			t.Fatalf("PublishAll() error = %v, want wrapped produce failure", err)
		}

		got, readErr := os.ReadFile(first)
		if readErr != nil {
			t.Fatalf("first target disappeared: %v", readErr)
		}
		if !bytes.Equal(got, previous) {
			t.Errorf("first target changed to %q", got)
		}
		if _, statErr := os.Stat(second); !os.IsNotExist(statErr) {
			t.Errorf("second target exists: %v", statErr)
		}
		if left := listDir(t, stageDir); len(left) != 0 {
			t.Errorf("staged files not discarded: %v", left)
		}
	})

	t.Run("no outputs", func(t *testing.T) {
		t.Parallel()
		if err := NewPublisher("", quietLogger()).PublishAll(context.Background()); err != nil {
			t.Errorf("PublishAll() with no outputs = %v", err)
		}
	})
}

func TestPublishNeverExposesPartialContent(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "big.bin")
	versionA := bytes.Repeat([]byte("A"), 1<<20)
	versionB := bytes.Repeat([]byte("B"), 1<<20)
	if err := os.WriteFile(target, versionA, 0o644); err != nil {
		t.Fatal(err)
	}

	var stop atomic.Bool
	var bad atomic.Int64
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				data, err := os.ReadFile(target)
				if err != nil {
					bad.Add(1)
					continue
				}
				if !bytes.Equal(data, versionA) && !bytes.Equal(data, versionB) {
					bad.Add(1)
				}
			}
		}()
	}

	pub := NewPublisher(t.TempDir(), quietLogger())
	for i := range 20 {
		content := versionA
		if i%2 == 0 {
			content = versionB
		}
		// Write in small chunks so a non-atomic publisher would be caught.
		produce := func(_ context.Context, tmpPath string) error {
			f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			for off := 0; off < len(content); off += 4096 {
				if _, err := f.Write(content[off : off+4096]); err != nil {
					_ = f.Close()
					return err
				}
			}
			return f.Close()
		}
		if err := pub.Publish(context.Background(), target, produce); err != nil {
			t.Fatalf("Publish() #%d failed: %v", i, err)
		}
	}
	stop.Store(true)
	wg.Wait()

	if n := bad.Load(); n != 0 {
		t.Errorf("readers observed %d partial or missing artifacts", n)
	}
}

func TestConcurrentPublishSharedStagingDir(t *testing.T) {
	t.Parallel()

	stageDir := t.TempDir()
	outDir := t.TempDir()
	pub := NewPublisher(stageDir, quietLogger())

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Same base name in different directories sanitizes to similar prefixes.
			target := filepath.Join(outDir, fmt.Sprintf("pkg%d", i), "main")
			errs <- pub.Publish(context.Background(), target, writeProducer([]byte(target)))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Publish() failed: %v", err)
		}
	}
	for i := range n {
		target := filepath.Join(outDir, fmt.Sprintf("pkg%d", i), "main")
		got, err := os.ReadFile(target)
		if err != nil || string(got) != target {
			t.Errorf("target %s = %q, %v", target, got, err)
		}
	}
	if left := listDir(t, stageDir); len(left) != 0 {
		t.Errorf("staging dir not empty: %v", left)
	}
}

func TestTempPattern(t *testing.T) {
	t.Parallel()

	got := TempPattern("build64_release/foo/bar.so")
	want := "blade_build64_release_foo_bar_so_*.tmp"
	if got != want {
		t.Errorf("TempPattern() = %q, want %q", got, want)
	}

	long := strings.Repeat("d/", 200) + "target"
	pattern := TempPattern(long)
	if strings.ContainsAny(strings.TrimSuffix(pattern, tempSuffix), "/.") {
		t.Errorf("TempPattern() kept separators: %q", pattern)
	}
	if !strings.HasSuffix(strings.TrimSuffix(pattern, "_*"+tempSuffix), "_target") {
		t.Errorf("TempPattern() dropped the distinctive tail: %q", pattern)
	}
}

func TestCopyBeside(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "staged")
	dst := filepath.Join(dstDir, "final")
	if err := os.WriteFile(src, []byte("payload"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := copyBeside(src, dst); err != nil {
		t.Fatalf("copyBeside() failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "payload" {
		t.Fatalf("dst = %q, %v", got, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("dst mode = %v, want executable bit preserved", info.Mode())
	}
	if names := listDir(t, dstDir); len(names) != 1 {
		t.Errorf("sibling temp left behind: %v", names)
	}
}
