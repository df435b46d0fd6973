package entity

import (
	"context"
	"net"
	"net/netip"
	"net/url"
)

// MaxURLLength bounds every URL the engine stores or fetches.
const MaxURLLength = 2048

// ValidateCandidateURL checks that rawURL is an absolute http(s) URL with a
// host and at most MaxURLLength bytes. It does not touch the network.
func ValidateCandidateURL(rawURL string) error {
	_, err := parseCandidateURL(rawURL)
	return err
}

func parseCandidateURL(rawURL string) (*url.URL, error) {
	switch {
	case rawURL == "":
		return nil, invalid("url", "required")
	case len(rawURL) > MaxURLLength:
		return nil, invalid("url", "longer than %d bytes", MaxURLLength)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalid("url", "%v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalid("url", "scheme must be http or https")
	}
	if u.Hostname() == "" {
		return nil, invalid("url", "host is empty")
	}
	return u, nil
}

// ValidatePublicURL extends ValidateCandidateURL by resolving the host and
// rejecting loopback, link-local and private addresses. Candidate URLs are
// scraped from third-party pages; probing clients call this before dialing.
// Resolution is bounded by ctx. A failed lookup is left to the request
// itself to report unless ctx has ended.
func ValidatePublicURL(ctx context.Context, rawURL string) error {
	u, err := parseCandidateURL(rawURL)
	if err != nil {
		return err
	}

	host := u.Hostname()
	if addr, err := netip.ParseAddr(host); err == nil {
		return checkPublic(addr)
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return ctx.Err()
	}
	for _, addr := range addrs {
		if err := checkPublic(addr.Unmap()); err != nil {
			return err
		}
	}
	return nil
}

func checkPublic(addr netip.Addr) error {
	if isInternalAddr(addr) {
		return invalid("url", "host resolves to a non-public address")
	}
	return nil
}

// isInternalAddr covers loopback, link-local (cloud metadata included),
// RFC 1918 / ULA and the unspecified address.
func isInternalAddr(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsPrivate() ||
		addr.IsUnspecified()
}
