package providers

import "testing"

func TestAbsoluteURL(t *testing.T) {
	testCases := []struct {
		name     string
		src      string
		expected string
	}{
		{"Absolute", "https://img.example/a/1.jpg", "https://img.example/a/1.jpg"},
		{"Protocol-relative", "//img.example/a/1.jpg", "https://img.example/a/1.jpg"},
		{"Root-relative", "/data/1.webp", "http://site.example/data/1.webp"},
		{"Path-relative", "img/1.png", "http://site.example/s/abc/img/1.png"},
		{"Surrounding whitespace", "  /data/2.jpg\n", "http://site.example/data/2.jpg"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AbsoluteURL("http://site.example/s/abc/2561-1", tc.src)
			if err != nil {
				t.Fatalf("AbsoluteURL(%q) returned an error: %v", tc.src, err)
			}
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}

	if _, err := AbsoluteURL("http://site.example/", "http://[::1"); err == nil {
		t.Error("Expected an error for an unparseable src")
	}
}
