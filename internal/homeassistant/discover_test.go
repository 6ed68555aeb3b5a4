package homeassistant

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/matryer/is"
)

func TestInstanceFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  *Instance
	}{
		{
			name: "internal url from txt record",
			entry: &mdns.ServiceEntry{
				Name:       "Home._home-assistant._tcp.local.",
				AddrV4:     net.ParseIP("192.168.1.10"),
				Port:       8123,
				InfoFields: []string{"version=2024.5.0", "internal_url=http://192.168.1.10:8123/", "base_url=http://ha.local:8123"},
			},
			want: &Instance{Name: "Home", BaseURL: "http://192.168.1.10:8123", Version: "2024.5.0"},
		},
		{
			name: "address fallback",
			entry: &mdns.ServiceEntry{
				Name:       "Home._home-assistant._tcp.local.",
				AddrV4:     net.ParseIP("10.0.0.5"),
				Port:       8123,
				InfoFields: []string{"internal_url="},
			},
			want: &Instance{Name: "Home", BaseURL: "http://10.0.0.5:8123"},
		},
		{
			name:  "no address",
			entry: &mdns.ServiceEntry{Name: "Home._home-assistant._tcp.local."},
			want:  nil,
		},
		{
			name:  "nil entry",
			entry: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(instanceFromEntry(tt.entry), tt.want)
		})
	}
}
