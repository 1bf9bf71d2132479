package transfer

import "testing"

func TestLedgerResolvesOnce(t *testing.T) {
	l := NewLedger()
	decision := l.Await("a")

	if !l.Resolve("a", true) {
		t.Fatal("Expected first resolve to succeed")
	}
	if l.Resolve("a", false) {
		t.Error("Expected second resolve to be ignored")
	}
	if got := <-decision; !got {
		t.Error("Expected accepted decision")
	}
	if l.Len() != 0 {
		t.Errorf("Expected empty ledger, got %d", l.Len())
	}
}

func TestLedgerRejectAll(t *testing.T) {
	l := NewLedger()
	a := l.Await("a")
	b := l.Await("b")

	l.RejectAll()

	if <-a || <-b {
		t.Error("Expected every pending entry to resolve to reject")
	}
	if l.Resolve("a", true) {
		t.Error("Expected resolve after RejectAll to be ignored")
	}
	if <-l.Await("c") {
		t.Error("Expected entries after RejectAll to reject immediately")
	}
}

func TestLedgerUnknownID(t *testing.T) {
	l := NewLedger()
	if l.Resolve("missing", true) {
		t.Error("Expected resolve of unknown id to report false")
	}
}
