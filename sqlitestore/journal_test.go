package sqlitestore

import (
	"testing"

	mal "github.com/sransara/mal-practice/core"
)

var _ mal.Journal = (*Journal)(nil)

func testJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendAndEntries(t *testing.T) {
	j := testJournal(t, t.TempDir())

	for _, e := range []string{"(define x 1)", "(define y (add x 1))"} {
		if err := j.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := j.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0] != "(define x 1)" || entries[1] != "(define y (add x 1))" {
		t.Fatalf("unexpected entries: %q", entries)
	}
}

func TestJournalReset(t *testing.T) {
	j := testJournal(t, t.TempDir())

	j.Append("(define x 1)")
	if err := j.Reset(); err != nil {
		t.Fatal(err)
	}
	entries, err := j.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty journal, got %q", entries)
	}
}

func TestJournalReopenAndReplay(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	j.Append(`(define greeting "hi")`)
	j.Append(`(define twice (fn* (x) (list x x)))`)
	j.Close()

	j2 := testJournal(t, dir)
	env := mal.NewStdEnv()
	n, err := mal.Replay(j2, env)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 replayed entries, got %d", n)
	}
	val, err := mal.EvalString("(twice greeting)", env)
	if err != nil {
		t.Fatal(err)
	}
	want := mal.ListVal([]mal.Value{mal.StringVal("hi"), mal.StringVal("hi")})
	if !mal.ValuesEqual(val, want) {
		t.Fatalf("expected %s, got %s", want.String(), val.String())
	}
}
