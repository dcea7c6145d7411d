package serve

import (
	"context"
	"net"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/consulta/advisor-service/internal/config"
)

// startManagementServer brings up the health/metrics listener on its own
// port so probes and scrapes never compete with API traffic. Plaintext is
// forced on when neither mode is configured, since probes rarely speak TLS.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	m, err := listenMuxed("management", cfg, handler)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Management server listening", "addr", m.addr())
	return m.addr(), m.shutdown, nil
}
