package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"user-directory/internal/redis"
)

// ProxyDetector classifies a requester's network origin against an external
// IP reputation service. Lookups are cached in redis, rate limited outbound,
// and guarded by a circuit breaker. The reputation service is best effort:
// when it cannot answer, classification fails open (not a proxy) so a
// third-party outage never blocks all registration.
type ProxyDetector struct {
	log      *slog.Logger
	redis    *redis.Client
	client   *http.Client
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
	checkURL string
}

const proxyCacheTTL = 6 * time.Hour

func NewProxyDetector(log *slog.Logger, redisClient *redis.Client, checkURL string) *ProxyDetector {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &ProxyDetector{
		log:      log,
		redis:    redisClient,
		client:   &http.Client{Transport: transport, Timeout: 10 * time.Second},
		breaker:  NewCircuitBreaker(),
		limiter:  rate.NewLimiter(rate.Limit(20), 40), // 20 lookups/s, burst 40
		checkURL: checkURL,
	}
}

// IsProxy reports whether ip is classified as a proxy/VPN origin.
func (p *ProxyDetector) IsProxy(ctx context.Context, ip string) (bool, error) {
	if net.ParseIP(ip) == nil {
		return false, fmt.Errorf("not an ip address: %q", ip)
	}

	// private/loopback origins are never proxies and never worth a lookup
	if parsed := net.ParseIP(ip); parsed.IsLoopback() || parsed.IsPrivate() {
		return false, nil
	}

	cacheKey := "proxycheck:" + ip
	if p.redis != nil {
		if cached, err := p.redis.Get(ctx, cacheKey); err == nil && cached != "" {
			return cached == "1", nil
		}
	}

	if !p.breaker.Allow() {
		p.log.Warn("proxy_check_circuit_open", "ip", ip, "state", p.breaker.StateString())
		return false, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}

	isProxy, err := p.lookup(ctx, ip)
	if err != nil {
		p.breaker.RecordFailure()
		p.log.Warn("proxy_check_failed", "ip", ip, "error", err)
		// fail open: an unreachable reputation service must not block signups
		return false, nil
	}
	p.breaker.RecordSuccess()

	if p.redis != nil {
		val := "0"
		if isProxy {
			val = "1"
		}
		if err := p.redis.Set(ctx, cacheKey, val, proxyCacheTTL); err != nil {
			p.log.Debug("proxy_cache_write_failed", "ip", ip, "error", err)
		}
	}

	return isProxy, nil
}

func (p *ProxyDetector) lookup(ctx context.Context, ip string) (bool, error) {
	u := p.checkURL + "?ip=" + url.QueryEscape(ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("reputation service returned %d", resp.StatusCode)
	}

	var body struct {
		Proxy bool `json:"proxy"`
		VPN   bool `json:"vpn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode reputation response: %w", err)
	}

	return body.Proxy || body.VPN, nil
}
