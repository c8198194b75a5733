package bplus

import "testing"

func TestVerify_HealthyTreeHasNoIssues(t *testing.T) {
	tr := newTestTree(t, 4)
	for i := int32(1); i <= 12; i++ {
		mustInsert(t, tr, i, i*10)
	}
	for _, k := range []int32{3, 7, 1} {
		if _, err := tr.Remove(k); err != nil {
			t.Fatalf("remove(%d): %v", k, err)
		}
	}

	issues, err := Verify(tr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestVerify_SingleLeafRootHasNoIssues(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), int32(10))
	issues, err := Verify(tr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}
