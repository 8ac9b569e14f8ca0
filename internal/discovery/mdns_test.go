package discovery

import (
	"net"
	"testing"
)

func TestEntryURL(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		port   int
		v4     []net.IP
		v6     []net.IP
		want   string
		wantOK bool
	}{
		{
			name:   "ipv4 preferred",
			host:   "ov2640-slave.local.",
			port:   80,
			v4:     []net.IP{net.ParseIP("192.168.4.2")},
			v6:     []net.IP{net.ParseIP("fe80::1")},
			want:   "http://192.168.4.2:80",
			wantOK: true,
		},
		{
			name:   "ipv6 bracketed",
			port:   8080,
			v6:     []net.IP{net.ParseIP("fe80::1")},
			want:   "http://[fe80::1]:8080",
			wantOK: true,
		},
		{
			name:   "host name fallback",
			host:   "ov2640-slave.local.",
			port:   80,
			want:   "http://ov2640-slave.local:80",
			wantOK: true,
		},
		{
			name: "no port",
			host: "x.local.",
		},
		{
			name: "nothing usable",
			port: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := entryURL(tt.host, tt.port, tt.v4, tt.v6)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("entryURL() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAdvertiseValidation(t *testing.T) {
	if _, err := Advertise(Config{Port: 80}); err == nil {
		t.Error("Advertise() without instance succeeded")
	}
	if _, err := Advertise(Config{Instance: "cam", Port: 0}); err == nil {
		t.Error("Advertise() with port 0 succeeded")
	}
}

func TestNewBrowserDefaults(t *testing.T) {
	b := NewBrowser(Config{})
	if b.cfg.BrowseTimeout != DefaultBrowseTimeout {
		t.Errorf("BrowseTimeout = %v, want %v", b.cfg.BrowseTimeout, DefaultBrowseTimeout)
	}
}
