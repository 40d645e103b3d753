package cmd

import (
	"testing"
)

func TestResolveSiteURL(t *testing.T) {
	t.Parallel()

	home := "https://example.com"

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "absolute same host", in: "https://example.com/about/", want: "https://example.com/about/"},
		{name: "path resolved against home", in: "/about/", want: "https://example.com/about/"},
		{name: "relative path resolved against home", in: "about", want: "https://example.com/about"},
		{name: "foreign host rejected", in: "https://other.example/about/", wantErr: true},
		{name: "non http scheme rejected", in: "ftp://example.com/file", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolveSiteURL(home, tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("resolveSiteURL(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSiteURL(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("resolveSiteURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
