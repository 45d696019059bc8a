package cachestatus

import "testing"

func TestString(t *testing.T) {
	cases := []struct {
		build    func(cs *CacheStatus)
		expected string
	}{
		{func(cs *CacheStatus) { cs.Hit() }, "OfflineCache; hit"},
		{func(cs *CacheStatus) { cs.Forward(FwdReasonMethod) }, "OfflineCache; fwd=method"},
		{func(cs *CacheStatus) {
			cs.Forward(FwdReasonBypass)
			cs.Stored = true
		}, "OfflineCache; fwd=bypass; stored"},
		{func(cs *CacheStatus) {
			cs.Forward(FwdReasonMiss)
			cs.Hit()
			cs.Detail = "offline"
		}, "OfflineCache; hit; detail=offline"},
	}
	for _, c := range cases {
		cs := CacheStatus{}
		c.build(&cs)
		if s := cs.String(); s != c.expected {
			t.Fatalf("Cache-Status is '%s', expected '%s'", s, c.expected)
		}
	}
}
