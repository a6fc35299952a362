package httpx

import (
	"net/netip"
	"testing"
)

func TestIsPublicAddr(t *testing.T) {
	cases := map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"10.1.2.3":         false,
		"172.16.0.9":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"::1":              false,
		"fe80::1":          false,
		"fd00::1":          false,
		"::ffff:127.0.0.1": false,
		"::ffff:8.8.8.8":   true,
	}
	for in, want := range cases {
		if got := IsPublicAddr(netip.MustParseAddr(in)); got != want {
			t.Errorf("IsPublicAddr(%s) = %v, want %v", in, got, want)
		}
	}
}

func TestPublicOnlyControl(t *testing.T) {
	if err := publicOnly("tcp4", "127.0.0.1:80", nil); err == nil {
		t.Fatalf("loopback dial allowed")
	}
	if err := publicOnly("tcp6", "[fe80::1]:443", nil); err == nil {
		t.Fatalf("link-local dial allowed")
	}
	if err := publicOnly("tcp4", "93.184.216.34:443", nil); err != nil {
		t.Fatalf("public dial refused: %v", err)
	}
}
