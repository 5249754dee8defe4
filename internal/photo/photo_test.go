package photo

import "testing"

func TestSortByTimestamp(t *testing.T) {
	in := []Loaded{
		{Timestamp: 30, FacingMode: FacingUser},
		{Timestamp: 10},
		{Timestamp: 40},
		{Timestamp: 20},
	}
	got := SortByTimestamp(in)
	for i, want := range []int64{10, 20, 30, 40} {
		if got[i].Timestamp != want {
			t.Fatalf("position %d: got %d, want %d", i, got[i].Timestamp, want)
		}
	}
	if in[0].Timestamp != 30 {
		t.Errorf("input slice was reordered")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	src := []CapturedImage{{Data: "a", Timestamp: 1}, {Data: "b", Timestamp: 2}}
	snap := Snapshot(src)
	src[0].Data = "changed"
	src = append(src[:1], CapturedImage{Data: "c"})
	if snap[0].Data != "a" || snap[1].Data != "b" {
		t.Errorf("snapshot observed mutation: %+v", snap)
	}
}

func TestFacingMode(t *testing.T) {
	if FacingUser.Toggle() != FacingEnvironment || FacingEnvironment.Toggle() != FacingUser {
		t.Errorf("Toggle() did not flip the facing mode")
	}
	if !FacingUser.Mirrored() || FacingEnvironment.Mirrored() {
		t.Errorf("only user-facing frames are mirrored")
	}
	if _, err := ParseFacingMode("sideways"); err == nil {
		t.Errorf("ParseFacingMode accepted an unknown mode")
	}
}
