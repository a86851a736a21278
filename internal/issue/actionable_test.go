// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "encode resource"},
			expected: "failed to encode resource",
		},
		{
			name:     "with resource",
			err:      &ActionableError{Operation: "encode resource", Resource: "res/logo.png"},
			expected: "failed to encode resource: res/logo.png",
		},
		{
			name: "with cause",
			err: &ActionableError{
				Operation: "encode resource",
				Resource:  "res/logo.png",
				Cause:     errors.New("no such file or directory"),
			},
			expected: "failed to encode resource: res/logo.png: no such file or directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("base directory missing")
	err := NewErrorContext().
		WithOperation("build python binary").
		Wrap(fmt.Errorf("lib.pylib: %w", sentinel)).
		BuildError()

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is() does not see through ActionableError")
	}
	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Operation != "build python binary" {
		t.Errorf("errors.As() = %+v", ae)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	err := &ActionableError{
		Operation:   "link binary",
		Resource:    "build64_release/app",
		Suggestions: []string{"Add the missing library to deps", "Run with --verbose"},
		Cause:       fmt.Errorf("link: %w", errors.New("exit status 1")),
	}

	short := err.Format(false)
	for _, want := range []string{
		"failed to link binary: build64_release/app",
		"  • Add the missing library to deps",
		"  • Run with --verbose",
	} {
		if !strings.Contains(short, want) {
			t.Errorf("Format(false) missing %q:\n%s", want, short)
		}
	}
	if strings.Contains(short, "Error chain") {
		t.Error("Format(false) includes the error chain")
	}

	long := err.Format(true)
	if !strings.Contains(long, "1. link: exit status 1") || !strings.Contains(long, "2. exit status 1") {
		t.Errorf("Format(true) chain wrong:\n%s", long)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation returned an error")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation returned non-nil")
	}

	ae := NewErrorContext().
		WithOperation("publish artifact").
		WithResource("out/app").
		WithSuggestion("one").
		WithSuggestions("two", "three").
		WithIssue(LinkFailedId).
		Build()
	if ae.Resource != "out/app" || len(ae.Suggestions) != 3 || ae.Issue != LinkFailedId {
		t.Errorf("Build() = %+v", ae)
	}
	if !ae.HasSuggestions() || NewActionableError("x").HasSuggestions() {
		t.Error("HasSuggestions() wrong")
	}
}

func TestWrapHelpers(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil || WrapWithContext(nil, "x", "y") != nil {
		t.Error("wrapping nil returned non-nil")
	}
	cause := errors.New("boom")
	if got := WrapWithContext(cause, "generate index", "res/T").Error(); got != "failed to generate index: res/T: boom" {
		t.Errorf("WrapWithContext() = %q", got)
	}
	if got := WrapWithOperation(cause, "generate index"); got.Unwrap() != cause {
		t.Error("WrapWithOperation() lost the cause")
	}
}

func TestActionableError_Guidance(t *testing.T) {
	stubRender(t)

	withIssue := &ActionableError{Operation: "link binary", Issue: LinkFailedId}
	out, err := withIssue.Guidance("")
	if err != nil {
		t.Fatalf("Guidance() failed: %v", err)
	}
	if !strings.Contains(out, "Link command failed") {
		t.Errorf("Guidance() = %q", out)
	}

	out, err = NewActionableError("x").Guidance("")
	if err != nil || out != "" {
		t.Errorf("Guidance() without issue = %q, %v", out, err)
	}
}
