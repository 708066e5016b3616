package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeExec struct {
	calls   []string
	syncErr error
}

func (f *fakeExec) NewEntry(ctx context.Context) error {
	f.calls = append(f.calls, "new")
	return nil
}
func (f *fakeExec) List(ctx context.Context) error { f.calls = append(f.calls, "list"); return nil }
func (f *fakeExec) Show(ctx context.Context) error { f.calls = append(f.calls, "show"); return nil }
func (f *fakeExec) Edit(ctx context.Context) error { f.calls = append(f.calls, "edit"); return nil }
func (f *fakeExec) Remove(ctx context.Context) error {
	f.calls = append(f.calls, "rm")
	return nil
}
func (f *fakeExec) Sync(ctx context.Context) error {
	f.calls = append(f.calls, "sync")
	return f.syncErr
}

func silencePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(args ...any) {
		var sb strings.Builder
		for i, a := range args {
			if i > 0 {
				sb.WriteByte(' ')
			}
			switch v := a.(type) {
			case string:
				sb.WriteString(v)
			default:
				sb.WriteString("?")
			}
		}
		lines = append(lines, sb.String())
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	silencePrintln(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"new",
		"l",
		"show",
		"edit",
		"rm",
		"sync",
		"bogus",
		"exit",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "online" }, bufio.NewScanner(input))

	want := []string{"new", "list", "show", "edit", "rm", "sync"}
	if len(exec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", exec.calls, want)
	}
	for i := range want {
		if exec.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", exec.calls, want)
		}
	}
}

func TestRunREPL_ReportsHandlerErrors(t *testing.T) {
	lines := silencePrintln(t)

	input := strings.NewReader("sync\nquit\n")
	exec := &fakeExec{syncErr: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "offline" }, bufio.NewScanner(input))

	found := false
	for _, l := range *lines {
		if strings.Contains(l, "boom") {
			found = true
		}
	}
	if !found {
		t.Fatalf("error not reported, output: %v", *lines)
	}
}

func TestRunREPL_ExitsOnEOF(t *testing.T) {
	silencePrintln(t)
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("")))
	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
