package fuzzy

import "testing"

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"teacher", "teacher", 0},
		{"Teacher", "teacher", 0},
		{"techer", "teacher", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"città", "citta", 1},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestClosestWithinThreshold(t *testing.T) {
	m := New(DefaultThreshold)
	got, ok := m.Closest("teachrs", []string{"course", "teacher", "department"})
	if !ok || got != "teacher" {
		t.Fatalf("Closest() = %q, %v", got, ok)
	}
}

func TestClosestRejectsDistantWord(t *testing.T) {
	m := New(DefaultThreshold)
	if got, ok := m.Closest("building", []string{"teacher", "course"}); ok {
		t.Fatalf("Closest() = %q, expected no match", got)
	}
	if _, ok := m.Closest("  ", []string{"teacher"}); ok {
		t.Fatal("blank candidate should not match")
	}
}

func TestClosestKeepsFirstOnTie(t *testing.T) {
	m := New(1)
	got, ok := m.Closest("cat", []string{"bat", "car"})
	if !ok || got != "bat" {
		t.Fatalf("Closest() = %q, %v", got, ok)
	}
}

func TestAlternativesOrderedByDistance(t *testing.T) {
	m := New(2)
	got := m.Alternatives("rome", []string{"roma", "rome", "home", "paris", "rome"})
	if len(got) != 3 {
		t.Fatalf("Alternatives() = %v", got)
	}
	if got[0].Value != "rome" || got[0].Distance != 0 {
		t.Fatalf("first alternative = %+v", got[0])
	}
	if got[1].Value != "roma" || got[2].Value != "home" {
		t.Fatalf("Alternatives() = %v", got)
	}
}
