package challenges

import "testing"

func TestIssueThenCurrent(t *testing.T) {
	tbl := New()
	c, err := tbl.Issue("testUser")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, ok := tbl.Current("testUser")
	if !ok {
		t.Fatal("Current: not found after Issue")
	}
	if got != c {
		t.Fatal("Current does not match issued challenge")
	}
}

func TestIssueReplacesPriorChallenge(t *testing.T) {
	tbl := New()
	first, err := tbl.Issue("testUser")
	if err != nil {
		t.Fatalf("Issue 1: %v", err)
	}
	second, err := tbl.Issue("testUser")
	if err != nil {
		t.Fatalf("Issue 2: %v", err)
	}
	if first == second {
		t.Fatal("two issued challenges were identical (rand collision or not re-generated)")
	}
	got, ok := tbl.Current("testUser")
	if !ok {
		t.Fatal("Current: not found")
	}
	if got != second {
		t.Fatal("Current returned the replaced, not the latest, challenge")
	}
}

func TestCurrentUnknownUser(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Current("nobody"); ok {
		t.Fatal("expected no challenge for unissued user")
	}
}

func TestRandomDoesNotStore(t *testing.T) {
	tbl := New()
	if _, err := Random(); err != nil {
		t.Fatalf("Random: %v", err)
	}
	if _, ok := tbl.Current("nobody"); ok {
		t.Fatal("Random must not store into any table")
	}
}
