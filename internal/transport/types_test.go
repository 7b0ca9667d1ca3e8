package transport

import "testing"

func TestParseDestination(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Destination
		ok   bool
	}{
		{in: "-1001234567890", want: Destination{ChatID: -1001234567890}, ok: true},
		{in: "42", want: Destination{ChatID: 42}, ok: true},
		{in: "@memes", want: Destination{Username: "@memes"}, ok: true},
		{in: "memes", want: Destination{Username: "@memes"}, ok: true},
		{in: " @memes ", want: Destination{Username: "@memes"}, ok: true},
		{in: "", ok: false},
		{in: "@", ok: false},
		{in: "two words", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseDestination(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseDestination(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if (Destination{}).IsZero() != true || (Destination{ChatID: 1}).String() != "1" {
		t.Fatal("Destination helpers")
	}
}
