package images

import (
	"strings"
	"testing"
)

func TestPublicID(t *testing.T) {
	if got := publicID("", "abcd1234.png"); got != "abcd1234.png" {
		t.Errorf("publicID with no folder = %q", got)
	}
	if got := publicID("xy", "abcd1234.png"); got != "xy/abcd1234.png" {
		t.Errorf("publicID with folder = %q", got)
	}
}

func TestRandomName(t *testing.T) {
	if got := randomName(0); got != "" {
		t.Errorf("randomName(0) = %q, want empty", got)
	}

	name := randomName(8)
	if len(name) != 8 {
		t.Fatalf("len = %d, want 8", len(name))
	}
	for _, c := range name {
		if !strings.ContainsRune(nameAlphabet, c) {
			t.Errorf("unexpected character %q", c)
		}
	}

	if randomName(16) == randomName(16) {
		t.Error("two generated names collided")
	}
}

func TestFileExtension(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"photo.PNG", "png"},
		{"archive.tar.gz", "gz"},
		{"noext", "bin"},
		{"", "bin"},
	}
	for _, c := range cases {
		if got := fileExtension(c.in); got != c.want {
			t.Errorf("fileExtension(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
