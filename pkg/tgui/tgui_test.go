package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo wörld", 6, "héllo…"},
		{"abc", 0, ""},
		{"abc", 1, "…"},
	}
	for _, c := range cases {
		if got := TruncRunes(c.in, c.n); got != c.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()
	got := Lines(B("a<b"), "", Code("x&y"), I("z")).String()
	want := "<b>a&lt;b</b>\n\n<code>x&amp;y</code>\n<i>z</i>"
	if got != want {
		t.Fatalf("Lines = %q, want %q", got, want)
	}
	if Esc(`"q"`).String() != "&#34;q&#34;" {
		t.Fatalf("Esc = %q", Esc(`"q"`))
	}
}
