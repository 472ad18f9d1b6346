package money

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"80", 8000, true},
		{"1.5", 150, true},
		{"1.50", 150, true},
		{"1.509", 150, true}, // truncated past 2 decimals
		{"1000", 100000, true},
		{"-5", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := Parse(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Parse(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{8000, "80"},
		{150, "1.5"},
		{155, "1.55"},
		{5, "0.05"},
		{-150, "-1.5"},
	}
	for _, c := range cases {
		if got := Format(c.in); got != c.want {
			t.Errorf("Format(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(FromMajor(100), 80); got != FromMajor(80) {
		t.Errorf("Percent(10000, 80) = %d, want 8000", got)
	}
	if got := Percent(9900, 80); got != 7920 {
		t.Errorf("Percent(9900, 80) = %d, want 7920", got)
	}
	if got := Percent(101, 50); got != 51 { // rounds half up
		t.Errorf("Percent(101, 50) = %d, want 51", got)
	}
}
