// Package plain registers the "plain" encryption provider, a passthrough
// that writes no ASE1 header. It is the default, so deployments that never
// configured a key store files as-is.
package plain

import (
	"context"
	"io"

	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/registry/encrypt"
)

type passthrough struct{}

var _ encrypt.Provider = passthrough{}

func (passthrough) ID() string { return "plain" }

func (passthrough) Encrypt(b []byte) ([]byte, error) { return b, nil }

func (passthrough) Decrypt(b []byte) ([]byte, error) { return b, nil }

func (passthrough) EncryptStream(dst io.Writer) (io.WriteCloser, error) {
	return nopCloser{dst}, nil
}

func (passthrough) DecryptStream(src io.Reader, _ *encrypt.Header) (io.Reader, error) {
	return src, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "plain",
		Loader: func(_ context.Context, _ *config.Config) (encrypt.Provider, error) {
			return passthrough{}, nil
		},
	})
}
