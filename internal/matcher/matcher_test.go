package matcher

import (
	"strings"
	"testing"
	"time"

	"github.com/sensit/sensit/internal/signatures"
)

func corpus(t *testing.T, yml string) *signatures.Corpus {
	t.Helper()
	c, err := signatures.Load([]byte(yml), map[string]bool{"aws": true})
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return c
}

func TestScanOrderAndOffsets(t *testing.T) {
	c := corpus(t, `
bbb:
  pattern: 'bb'
  severity: LOW
aaa:
  pattern: 'aa'
  severity: LOW
`)
	m := New(c)
	got, warns := m.Scan("aa bb aa bb", "t")
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	// Signature declaration order first, then ascending offset.
	want := []struct {
		sig string
		off int
	}{{"bbb", 3}, {"bbb", 9}, {"aaa", 0}, {"aaa", 6}}
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Signature != w.sig || got[i].Offset != w.off {
			t.Fatalf("match %d: got %s@%d want %s@%d", i, got[i].Signature, got[i].Offset, w.sig, w.off)
		}
	}
}

func TestScanNonOverlapping(t *testing.T) {
	c := corpus(t, "x:\n  pattern: 'aa'\n  severity: LOW\n")
	got, _ := New(c).Scan("aaaa", "t")
	if len(got) != 2 {
		t.Fatalf("expected 2 non-overlapping matches in aaaa, got %d", len(got))
	}
}

func TestScanCaptureGroupValue(t *testing.T) {
	c := corpus(t, `
secretish:
  pattern: '(?i)password["\s:=]+([A-Za-z0-9]{8,})'
  severity: MEDIUM
`)
	got, _ := New(c).Scan(`password = "hunter2hunter2"`, "t")
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].Value != "hunter2hunter2" {
		t.Fatalf("capture group not extracted: %q", got[0].Value)
	}
}

func TestScanBudgetSkipsSignature(t *testing.T) {
	c := corpus(t, `
slow:
  pattern: 'a'
  severity: LOW
fast:
  pattern: 'zz'
  severity: LOW
`)
	m := New(c)
	m.Budget = 1 * time.Nanosecond
	text := strings.Repeat("a", 10000) + "zz"
	got, warns := m.Scan(text, "t")
	if len(warns) == 0 {
		t.Fatalf("expected a budget warning")
	}
	for _, g := range got {
		if g.Signature == "slow" {
			t.Fatalf("budget-exceeded signature must contribute no matches")
		}
	}
}
