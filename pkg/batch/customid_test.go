package batch

import "testing"

func TestCustomID_RoundTrip(t *testing.T) {
	cases := []CustomID{
		{Stage: StageMine, SourceID: "ep-1", SegmentID: "seg-3"},
		{Stage: StageEvaluate, SourceID: "ep-1"},
		{Stage: StageRemine, SourceID: "ep-2", SegmentID: "seg-7"},
	}
	for _, c := range cases {
		s := c.String()
		parsed, err := ParseCustomID(s)
		if err != nil {
			t.Fatalf("ParseCustomID(%q): %v", s, err)
		}
		if parsed != c {
			t.Errorf("round trip mismatch: got %+v, want %+v", parsed, c)
		}
	}
}

func TestParseCustomID_Malformed(t *testing.T) {
	for _, s := range []string{"", "onlystage", "unknown:ep-1:seg-1"} {
		if _, err := ParseCustomID(s); err == nil {
			t.Errorf("expected error parsing %q", s)
		}
	}
}
