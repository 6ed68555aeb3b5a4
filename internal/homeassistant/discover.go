package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service Home Assistant advertises.
const ServiceType = "_home-assistant._tcp"

// DiscoverTimeout is how long Discover browses before giving up.
const DiscoverTimeout = 3 * time.Second

// ErrNotDiscovered is returned when no instance answered the mDNS query.
var ErrNotDiscovered = errors.New("no home assistant instance found via mdns")

// Instance describes a discovered Home Assistant server.
type Instance struct {
	Name    string
	BaseURL string
	Version string
}

// Discover browses the local network and returns the first instance found.
func Discover(ctx context.Context) (*Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: DiscoverTimeout,
		Entries: entries,
	}

	queryErr := make(chan error, 1)
	go func() {
		defer close(entries)
		queryErr <- mdns.Query(params)
	}()

	slog.Info("browsing for home assistant via mdns", "service", ServiceType, "timeout", DiscoverTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				if err := <-queryErr; err != nil {
					return nil, fmt.Errorf("mdns query failed: %w", err)
				}
				return nil, ErrNotDiscovered
			}
			if inst := instanceFromEntry(entry); inst != nil {
				slog.Info("discovered home assistant", "name", inst.Name, "base_url", inst.BaseURL, "version", inst.Version)
				return inst, nil
			}
		}
	}
}

// instanceFromEntry prefers the URLs in the TXT record over the address.
func instanceFromEntry(entry *mdns.ServiceEntry) *Instance {
	if entry == nil {
		return nil
	}

	txt := make(map[string]string, len(entry.InfoFields))
	for _, field := range entry.InfoFields {
		if k, v, ok := strings.Cut(field, "="); ok {
			txt[k] = v
		}
	}

	inst := &Instance{
		Name:    strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Version: txt["version"],
	}

	for _, key := range []string{"internal_url", "base_url"} {
		if u, err := url.Parse(txt[key]); err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https") {
			inst.BaseURL = strings.TrimRight(u.String(), "/")
			return inst
		}
	}

	if entry.AddrV4 == nil || entry.Port == 0 {
		return nil
	}
	inst.BaseURL = "http://" + net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port))
	return inst
}
