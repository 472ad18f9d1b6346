package geo

import (
	"math"
	"testing"
)

func TestDistanceKM(t *testing.T) {
	// Libreville city center to Owendo is roughly 9 km.
	libreville := Point{Lat: 0.4162, Lng: 9.4673}
	owendo := Point{Lat: 0.3380, Lng: 9.5050}

	d := DistanceKM(libreville, owendo)
	if d < 8 || d > 11 {
		t.Errorf("DistanceKM = %f, want roughly 9-10", d)
	}
}

func TestDistanceKM_SamePoint(t *testing.T) {
	p := Point{Lat: 0.4162, Lng: 9.4673}
	if d := DistanceKM(p, p); math.Abs(d) > 1e-9 {
		t.Errorf("DistanceKM(p, p) = %f, want 0", d)
	}
}

func TestZero(t *testing.T) {
	if !(Point{}).Zero() {
		t.Error("zero point should report Zero")
	}
	if (Point{Lat: 1}).Zero() {
		t.Error("non-zero point should not report Zero")
	}
}
