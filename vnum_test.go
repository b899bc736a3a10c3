package ocfl

import "testing"

func TestParseVNum(t *testing.T) {
	cases := []struct {
		in      string
		num     int
		padding int
	}{
		{"v1", 1, 0},
		{"v12", 12, 0},
		{"v0012", 12, 4},
	}
	for _, c := range cases {
		v, err := ParseVNum(c.in)
		if err != nil {
			t.Fatalf("ParseVNum(%q): %v", c.in, err)
		}
		if v.Num() != c.num || v.Padding() != c.padding {
			t.Fatalf("ParseVNum(%q) = {%d,%d}, want {%d,%d}", c.in, v.Num(), v.Padding(), c.num, c.padding)
		}
		if v.String() != c.in {
			t.Fatalf("String() = %q, want %q", v.String(), c.in)
		}
	}
}

func TestParseVNumRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "v", "1", "v0", "v-1", "va", "v01x"} {
		if _, err := ParseVNum(in); err == nil {
			t.Fatalf("ParseVNum(%q) should have failed", in)
		}
	}
}

func TestVNumNextPreservesPadding(t *testing.T) {
	v := MustParseVNum("v007")
	next, err := v.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next.String() != "v008" {
		t.Fatalf("Next() = %q, want v008", next.String())
	}
}

func TestVNumNextOverflowsPadding(t *testing.T) {
	// A 2-digit padding width caps the sequence at v09 (10^(2-1)-1): going
	// to v10 would stop needing the leading zero the padding exists for.
	v := MustParseVNum("v09")
	if _, err := v.Next(); err == nil {
		t.Fatal("expected v09 -> v10 to overflow a 2-digit padding")
	}
}

func TestVNumPaddingOverflowDetected(t *testing.T) {
	v := V(99, 2)
	if _, err := v.Next(); err == nil {
		t.Fatal("expected overflow error incrementing v99 with 2-digit padding")
	}
}

func TestVNumsValidDetectsGapsAndPaddingMismatch(t *testing.T) {
	ok := VNums{V(1), V(2), V(3)}
	if err := ok.Valid(); err != nil {
		t.Fatalf("expected contiguous sequence to be valid: %v", err)
	}

	gap := VNums{V(1), V(3)}
	if err := gap.Valid(); err == nil {
		t.Fatal("expected gap in version sequence to be invalid")
	}

	mixed := VNums{V(1, 2), V(2)}
	if err := mixed.Valid(); err == nil {
		t.Fatal("expected mixed padding to be invalid")
	}
}

func TestVNumsHead(t *testing.T) {
	vs := VNums{V(1), V(3), V(2)}
	if vs.Head() != V(3) {
		t.Fatalf("Head() = %v, want v3", vs.Head())
	}
}
