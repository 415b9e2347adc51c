package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// publicDNS are servers to be queried if a local lookup fails.
// Well-known, high-availability public DNS providers.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
}

// Lookup resolves a hostname to an IP address. It first attempts the
// system's default resolver and falls back to racing public DNS
// providers directly, which helps on networks with broken local DNS.
func Lookup(address string) (string, error) {
	ip, err := localLookupIP(address)
	if err == nil && ip != "" {
		return ip, nil
	}

	return remoteLookupWithRace(address)
}

// localLookupIP returns a host's IP address using the local DNS configuration.
func localLookupIP(address string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	r := &net.Resolver{}
	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}

	return pickAddress(ips)
}

// remoteLookupWithRace returns a host's IP address by racing the public
// DNS servers and taking the first successful answer.
func remoteLookupWithRace(address string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	results := make(chan result, len(publicDNS))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, dnsServer := range publicDNS {
		go func(server string) {
			ip, err := remoteLookupIP(ctx, address, server)
			results <- result{ip: ip, err: err}
		}(dnsServer)
	}

	failures := 0
	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup timed out during public DNS race")
		}
	}

	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", address, failures)
}

// remoteLookupIP queries a specific DNS server for the address.
func remoteLookupIP(ctx context.Context, address, dnsServer string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(dnsServer, "53"))
		},
	}

	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}

	return pickAddress(ips)
}

// pickAddress prefers an IPv4 address from the answer set.
func pickAddress(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
