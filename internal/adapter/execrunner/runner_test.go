package execrunner

import (
	"context"
	"testing"
	"time"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"echo hello", []string{"echo", "hello"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'a b' c`, []string{"echo", "a b", "c"}},
		{`grep -r "foo bar" .`, []string{"grep", "-r", "foo bar", "."}},
		{`echo a\ b`, []string{"echo", "a b"}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.input)
		if err != nil {
			t.Fatalf("SplitCommand(%q): %v", tt.input, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("SplitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("SplitCommand(%q) = %v, want %v", tt.input, got, tt.want)
			}
		}
	}
}

func TestSplitCommandUnterminatedQuote(t *testing.T) {
	if _, err := SplitCommand(`echo "oops`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestRunAllPassAndFail(t *testing.T) {
	r := New()
	results, err := r.RunAll(context.Background(), t.TempDir(), []string{
		"true",
		"false",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Passed() {
		t.Fatalf("true should pass, got exit %d", results[0].ExitCode)
	}
	if results[1].Passed() {
		t.Fatal("false should fail")
	}
}

func TestRunAllCapturesOutput(t *testing.T) {
	r := New()
	results, err := r.RunAll(context.Background(), t.TempDir(), []string{"echo hello"})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Stdout != "hello\n" {
		t.Fatalf("expected stdout hello, got %q", results[0].Stdout)
	}
}

func TestRunAllArgvKeepsElementsVerbatim(t *testing.T) {
	r := New()
	tricky := `a "b" \c 'd e'`
	results, err := r.RunAllArgv(context.Background(), t.TempDir(), [][]string{{"echo", tricky}})
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Passed() {
		t.Fatalf("echo should pass: %+v", results[0])
	}
	if results[0].Stdout != tricky+"\n" {
		t.Fatalf("argv element mangled: want %q, got %q", tricky, results[0].Stdout)
	}
}

func TestRunAllArgvEmptyCommand(t *testing.T) {
	r := New()
	results, err := r.RunAllArgv(context.Background(), t.TempDir(), [][]string{nil})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Passed() {
		t.Fatal("empty argv must be recorded as a failure")
	}
}

func TestRunAllRefusesMissingDir(t *testing.T) {
	r := New()
	if _, err := r.RunAll(context.Background(), "/nonexistent/dir", []string{"true"}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestRunAllCommandTimeout(t *testing.T) {
	r := New()
	r.CommandTimeout = 100 * time.Millisecond
	results, err := r.RunAll(context.Background(), t.TempDir(), []string{"sleep 5"})
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].TimedOut {
		t.Fatal("expected timeout")
	}
	if results[0].ExitCode != TimeoutExitCode {
		t.Fatalf("expected synthetic exit %d, got %d", TimeoutExitCode, results[0].ExitCode)
	}
}

func TestBoundedBufferTruncates(t *testing.T) {
	var b boundedBuffer
	b.limit = 4
	if _, err := b.Write([]byte("abcdefgh")); err != nil {
		t.Fatal(err)
	}
	s := b.String()
	if len(s) <= 4 && s != "abcd" {
		t.Fatalf("unexpected buffer content %q", s)
	}
	if !b.truncated {
		t.Fatal("expected truncation flag")
	}
}
