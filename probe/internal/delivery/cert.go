package delivery

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/additionsec/as-gateway/probe/internal/config"
)

// Certificate states reported by CheckCert.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUnreachable = "unreachable"
)

// expiringWithin is the window in which a certificate counts as expiring.
const expiringWithin = 30 * 24 * time.Hour

const certDialTimeout = 10 * time.Second

// CertStatus describes the leaf certificate presented by an https target.
type CertStatus struct {
	Endpoint string    `json:"endpoint"`
	Status   string    `json:"status"`
	Subject  string    `json:"subject,omitempty"`
	Issuer   string    `json:"issuer,omitempty"`
	NotAfter time.Time `json:"not_after,omitempty"`
	DaysLeft int       `json:"days_left"`
}

// CheckCert dials the target and inspects its leaf certificate using the
// target's TLS settings. It returns nil for plain http targets.
func CheckCert(ctx context.Context, cfg config.TargetConfig) *CertStatus {
	return checkCert(ctx, cfg, time.Now())
}

func checkCert(ctx context.Context, cfg config.TargetConfig, now time.Time) *CertStatus {
	u, err := url.Parse(cfg.URI)
	if err != nil || u.Scheme != "https" {
		return nil
	}
	cs := &CertStatus{Endpoint: cfg.URI, Status: CertUnreachable}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return cs
	}
	timeout := certDialTimeout
	if cfg.Timeout > 0 && cfg.Timeout < timeout {
		timeout = cfg.Timeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return cs
	}
	leaf := peers[0]
	left := leaf.NotAfter.Sub(now)

	cs.Subject = leaf.Subject.CommonName
	cs.Issuer = leaf.Issuer.CommonName
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))
	switch {
	case left <= 0:
		cs.Status = CertExpired
	case left <= expiringWithin:
		cs.Status = CertExpiring
	default:
		cs.Status = CertValid
	}
	return cs
}
