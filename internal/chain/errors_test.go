package chain

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Class
	}{
		{"object 0x1 is not available for consumption, current version 3", ClassVersionMismatch},
		{"non-retriable failure", ClassVersionMismatch},
		{"badge already exists for this player", ClassDuplicate},
		{"duplicate mint request", ClassDuplicate},
		{"already locked by another transaction", ClassDuplicate},
		{"MoveAbort(..., code 1) in badge::mint_badge", ClassAuthorization},
		{"connection reset by peer", ClassTransient},
		{"", ClassTransient},
	}

	for _, c := range cases {
		got := Classify(c.msg)
		if got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}
