package storage

import (
	"strings"
	"testing"
)

func TestObjectKeyShape(t *testing.T) {
	key := objectKey("user-1", "image/png")
	if !strings.HasPrefix(key, "profile-pictures/user-1/") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Fatalf("expected .png suffix, got %s", key)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/webp": ".webp",
		"image/gif":  ".gif",
		"text/plain": "",
	}
	for ct, want := range cases {
		if got := extensionFor(ct); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", ct, got, want)
		}
	}
}

func TestObjectURL(t *testing.T) {
	s := &S3Storage{bucket: "pics", region: "eu-west-3", baseURL: ""}
	got := s.objectURL("profile-pictures/u/x.png")
	want := "https://pics.s3.eu-west-3.amazonaws.com/profile-pictures/u/x.png"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	s.baseURL = "http://127.0.0.1:9000"
	got = s.objectURL("profile-pictures/u/x.png")
	want = "http://127.0.0.1:9000/pics/profile-pictures/u/x.png"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
