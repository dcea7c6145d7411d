package serve

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/consulta/advisor-service/internal/config"
)

// RunningServers describes a started listener. Port is the resolved port, so
// callers that asked for port 0 can discover where the server landed.
type RunningServers struct {
	Addr  net.Addr
	Port  int
	Close func(ctx context.Context) error
}

// StartSinglePortServer serves plaintext (HTTP/1.1 + h2c) and TLS
// (HTTP/1.1 + HTTP/2) traffic on one port, sniffing the TLS handshake to
// route each connection.
func StartSinglePortServer(
	_ context.Context,
	cfg config.ListenerConfig,
	handler http.Handler,
) (*RunningServers, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		return nil, fmt.Errorf("single-port configuration requires plaintext and/or tls enabled")
	}
	m, err := listenMuxed("single-port", cfg, handler)
	if err != nil {
		return nil, err
	}
	return &RunningServers{Addr: m.addr(), Port: m.port(), Close: m.shutdown}, nil
}

// muxedListener is the serving core shared by the API and management
// listeners: one TCP port, with cmux deciding per connection whether the
// first bytes are a TLS handshake or plaintext HTTP.
type muxedListener struct {
	base      net.Listener
	plain     *http.Server
	tls       *http.Server
	closeOnce sync.Once
}

func listenMuxed(name string, cfg config.ListenerConfig, handler http.Handler) (*muxedListener, error) {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	base, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%s listen failed: %w", name, err)
	}
	m := &muxedListener{base: base}
	muxer := cmux.New(base)

	// The TLS matcher must be registered first so handshakes never reach the
	// catch-all plaintext matcher.
	if cfg.EnableTLS {
		cert, err := loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = base.Close()
			return nil, err
		}
		lis := tls.NewListener(muxer.Match(cmux.TLS()), &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
		m.tls = &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
		go serveUntilClosed(name+" tls", m.tls, lis)
	}
	if cfg.EnablePlainText {
		lis := muxer.Match(cmux.Any())
		m.plain = &http.Server{
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
		go serveUntilClosed(name+" plaintext", m.plain, lis)
	}

	go func() {
		if err := muxer.Serve(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Error("connection mux failed", "listener", name, "err", err)
		}
	}()
	return m, nil
}

func serveUntilClosed(name string, srv *http.Server, lis net.Listener) {
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		log.Error("http server failed", "listener", name, "err", err)
	}
}

func (m *muxedListener) addr() net.Addr { return m.base.Addr() }

func (m *muxedListener) port() int {
	if tcpAddr, ok := m.base.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// shutdown drains both HTTP servers and then releases the port. Calling it
// more than once is safe.
func (m *muxedListener) shutdown(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		for _, srv := range []*http.Server{m.plain, m.tls} {
			if srv == nil {
				continue
			}
			if e := srv.Shutdown(ctx); e != nil && e != context.Canceled && err == nil {
				err = e
			}
		}
		_ = m.base.Close()
	})
	return err
}

// loadServerCertificate loads the configured keypair, or mints a throwaway
// self-signed localhost certificate so TLS can come up in dev without files.
func loadServerCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if strings.TrimSpace(certFile) == "" || strings.TrimSpace(keyFile) == "" {
		return selfSignedLocalhostCert()
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load tls certificate: %w", err)
	}
	return cert, nil
}

func selfSignedLocalhostCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls key failed: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls serial failed: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls certificate failed: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: template}, nil
}
