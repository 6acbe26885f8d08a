package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/additionsec/as-gateway/probe/internal/config"
)

func TestCheckCert_PlainHTTP(t *testing.T) {
	if cs := CheckCert(context.Background(), config.TargetConfig{URI: "http://localhost/v1/msg"}); cs != nil {
		t.Errorf("got %+v, want nil for http target", cs)
	}
}

func TestCheckCert_States(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	cfg := config.TargetConfig{URI: srv.URL + "/v1/msg", InsecureSkipVerify: true}
	notAfter := srv.Certificate().NotAfter

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"valid", notAfter.Add(-365 * 24 * time.Hour), CertValid},
		{"expiring", notAfter.Add(-10 * 24 * time.Hour), CertExpiring},
		{"expired", notAfter.Add(time.Hour), CertExpired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs := checkCert(context.Background(), cfg, tc.now)
			if cs == nil {
				t.Fatal("got nil status for https target")
			}
			if cs.Status != tc.want {
				t.Errorf("status: got %q, want %q", cs.Status, tc.want)
			}
			if !cs.NotAfter.Equal(notAfter.UTC()) {
				t.Errorf("not_after: got %v, want %v", cs.NotAfter, notAfter)
			}
		})
	}
}

func TestCheckCert_VerificationFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	cs := CheckCert(context.Background(), config.TargetConfig{URI: srv.URL})
	if cs == nil || cs.Status != CertUnreachable {
		t.Errorf("got %+v, want unreachable when the self-signed cert is not trusted", cs)
	}
}

func TestCheckCert_ConnectionRefused(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	cs := CheckCert(context.Background(), config.TargetConfig{URI: url, InsecureSkipVerify: true})
	if cs == nil || cs.Status != CertUnreachable {
		t.Errorf("got %+v, want unreachable", cs)
	}
}
