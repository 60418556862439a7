package orientation

import "testing"

func TestForIndex(t *testing.T) {
	cases := []struct {
		idx  int
		want Orientation
	}{
		{0, IdentityNeg},
		{7, IdentityNeg},
		{8, SwapNeg},
		{15, SwapNeg},
		{16, Identity},
		{23, Identity},
		{24, SwapPos},
		{31, SwapPos},
	}
	for _, c := range cases {
		if got := ForIndex(c.idx); got != c.want {
			t.Errorf("ForIndex(%d) = %v, want %v", c.idx, got, c.want)
		}
	}
}

func TestRewrite(t *testing.T) {
	cases := []struct {
		o              Orientation
		ax, ay, gx, gy int16
		wantAx, wantAy int16
		wantGx, wantGy int16
	}{
		{IdentityNeg, 10, 20, 30, 40, -10, -20, -30, -40},
		{SwapNeg, 10, 20, 30, 40, -20, 10, -40, 30},
		{Identity, 10, 20, 30, 40, 10, 20, 30, 40},
		{SwapPos, 10, 20, 30, 40, 20, -10, 40, -30},
	}
	for _, c := range cases {
		bx, by, bgx, bgy := c.o.Rewrite(c.ax, c.ay, c.gx, c.gy)
		if bx != c.wantAx || by != c.wantAy || bgx != c.wantGx || bgy != c.wantGy {
			t.Errorf("%v.Rewrite(%d,%d,%d,%d) = (%d,%d,%d,%d), want (%d,%d,%d,%d)",
				c.o, c.ax, c.ay, c.gx, c.gy, bx, by, bgx, bgy, c.wantAx, c.wantAy, c.wantGx, c.wantGy)
		}
	}
}
