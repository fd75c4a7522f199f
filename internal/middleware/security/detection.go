package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"kakeibo/internal/log"
)

const (
	maxURLLength     = 2048
	maxForwardedHops = 6
)

var (
	scanFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "eval(", "union select",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

	// blockedMethods are refused outright; every other finding is only logged.
	blockedMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}

	defaultProxies = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"}
)

// rule reports whether r trips it.
type rule struct {
	reason string
	match  func(r *http.Request) bool
}

var rules = []rule{
	{"method", func(r *http.Request) bool {
		return containsFold(blockedMethods, r.Method)
	}},
	{"pattern", func(r *http.Request) bool {
		path, query := strings.ToLower(r.URL.Path), strings.ToLower(r.URL.RawQuery)
		for _, frag := range scanFragments {
			if strings.Contains(path, frag) || strings.Contains(query, frag) {
				return true
			}
		}
		return false
	}},
	{"user_agent", func(r *http.Request) bool {
		ua := strings.ToLower(r.UserAgent())
		for _, a := range scannerAgents {
			if strings.Contains(ua, a) {
				return true
			}
		}
		return false
	}},
	{"long_url", func(r *http.Request) bool {
		return len(r.URL.String()) > maxURLLength
	}},
	{"forwarded_hops", func(r *http.Request) bool {
		return strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardedHops
	}},
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// DetectionMetrics counts what the detector has seen.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags scanner-like requests and resolves client addresses behind
// trusted proxies.
type Detector struct {
	suspicious atomic.Int64
	invalidIP  atomic.Int64

	mu      sync.RWMutex
	proxies []netip.Prefix
}

// NewDetector trusts loopback and the private ranges as reverse proxies.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range defaultProxies {
		d.proxies = append(d.proxies, netip.MustParsePrefix(cidr))
	}
	return d
}

// AddTrustedProxy trusts forwarding headers from peers inside cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.mu.Lock()
	d.proxies = append(d.proxies, p.Masked())
	d.mu.Unlock()
	return nil
}

// DetectSuspiciousRequest names the first rule r trips, or returns "".
func (d *Detector) DetectSuspiciousRequest(r *http.Request) string {
	for _, ru := range rules {
		if ru.match(r) {
			d.suspicious.Add(1)
			return ru.reason
		}
	}
	return ""
}

// Middleware logs suspicious requests. Only blocked methods are refused.
func (d *Detector) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSecurity)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := d.DetectSuspiciousRequest(r); reason != "" {
				logger.WarnContext(r.Context(), "Suspicious request",
					"reason", reason,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldClientIP, d.ExtractClientIP(r),
					log.FieldUserAgent, r.UserAgent())
				if reason == "method" {
					http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractClientIP returns the peer address, or the forwarded client when
// the peer is a trusted proxy. X-Forwarded-For wins over X-Real-IP.
// Malformed addresses are counted and skipped.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		d.invalidIP.Add(1)
		return host
	}
	if !d.trusted(peer) {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
		d.invalidIP.Add(1)
	}
	return host
}

func (d *Detector) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}
