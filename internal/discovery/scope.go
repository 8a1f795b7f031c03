// File: internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope keeps exploration on the target application. The target's own host is
// always in scope. The registrable domain (eTLD+1) is in scope too, and its
// other subdomains only when includeSubdomains is set. localhost and bare IPs
// must match exactly.
type Scope struct {
	base              *url.URL
	host              string
	rootDomain        string
	includeSubdomains bool
}

// NewScope derives the scope from the target url.
func NewScope(targetURL string, includeSubdomains bool) (*Scope, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target url must be http or https: %s", targetURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("target url must have a hostname: %s", targetURL)
	}

	root := host
	if net.ParseIP(host) == nil && strings.Contains(host, ".") {
		domain, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			return nil, fmt.Errorf("could not determine effective TLD+1 for %s: %w", host, err)
		}
		root = domain
	}
	return &Scope{base: u, host: host, rootDomain: root, includeSubdomains: includeSubdomains}, nil
}

// RootDomain returns the host or eTLD+1 defining the scope.
func (s *Scope) RootDomain() string { return s.rootDomain }

// InScope reports whether rawURL points at the target. Relative urls and
// non-navigational schemes such as about:blank are treated as in scope.
func (s *Scope) InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return u.Scheme == "about" || u.Scheme == "data"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == s.host || host == s.rootDomain {
		return true
	}
	return s.includeSubdomains && strings.HasSuffix(host, "."+s.rootDomain)
}

// Resolve turns a route such as "/polls/new" into an absolute url on the
// target. Absolute urls are returned unchanged.
func (s *Scope) Resolve(route string) string {
	ref, err := url.Parse(strings.TrimSpace(route))
	if err != nil {
		return s.base.String()
	}
	resolved := s.base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}
