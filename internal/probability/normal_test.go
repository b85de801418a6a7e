package probability

import "testing"

func TestNormalCDFSymmetricAtMean(t *testing.T) {
	if v := NormalCDF(50, 50, 5); abs(v-0.5) > 1e-9 {
		t.Fatalf("NormalCDF(mean) = %v, want 0.5", v)
	}
}

func TestProbAboveAndBelowSumToOne(t *testing.T) {
	above := ProbAbove(55, 50, 5)
	below := ProbBelow(55, 50, 5)
	if abs(above+below-1) > 1e-9 {
		t.Fatalf("ProbAbove + ProbBelow = %v, want 1", above+below)
	}
}

func TestProbBetweenNarrowsAsRangeShrinks(t *testing.T) {
	wide := ProbBetween(40, 60, 50, 5)
	narrow := ProbBetween(48, 52, 50, 5)
	if narrow >= wide {
		t.Fatalf("narrower range should have lower probability: narrow=%v wide=%v", narrow, wide)
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-0.5) != 0 {
		t.Fatal("Clamp01(-0.5) should be 0")
	}
	if Clamp01(1.5) != 1 {
		t.Fatal("Clamp01(1.5) should be 1")
	}
	if Clamp01(0.3) != 0.3 {
		t.Fatal("Clamp01(0.3) should be unchanged")
	}
}

func abs(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
