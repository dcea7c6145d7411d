// Package dekstore persists the wrapped data-encryption keys for the vault and
// kms providers. The external backend (Vault transit, AWS KMS) never sees file
// data; it only wraps and unwraps the DEKs stored here.
//
// One row per provider, holding the wrapped DEKs newest-first: index 0
// encrypts all new writes, older entries stay readable so key rotation never
// re-encrypts existing files. Rotation is an operational action — prepend a
// freshly wrapped DEK to the array with array_prepend and running instances
// pick it up on their next decrypt miss.
package dekstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/consulta/advisor-service/internal/config"
)

// Record is one provider's DEK row.
type Record struct {
	WrappedDEKs [][]byte
}

// Store reads and seeds the per-provider DEK rows.
type Store interface {
	// Load returns the record for provider, or nil when none exists yet.
	Load(ctx context.Context, provider string) (*Record, error)

	// Bootstrap inserts the first record for provider. Losing the insert
	// race to another instance is not an error; the caller Loads again and
	// uses whichever DEK won.
	Bootstrap(ctx context.Context, provider string, wrappedDEK []byte) error

	// Close releases the underlying connection.
	Close()
}

// New opens a dedicated postgres connection. Provider loaders run before the
// main store is up, so this cannot share its pool.
func New(cfg *config.Config) (Store, error) {
	conn, err := pgx.Connect(context.Background(), cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("dekstore: postgres connect: %w", err)
	}
	return &sqlStore{conn: conn}, nil
}

type sqlStore struct{ conn *pgx.Conn }

func (s *sqlStore) Close() { s.conn.Close(context.Background()) }

func (s *sqlStore) Load(ctx context.Context, provider string) (*Record, error) {
	var deks [][]byte
	err := s.conn.QueryRow(ctx,
		`SELECT wrapped_deks FROM encryption_deks WHERE provider=$1`,
		provider,
	).Scan(&deks)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dekstore: load: %w", err)
	}
	return &Record{WrappedDEKs: deks}, nil
}

func (s *sqlStore) Bootstrap(ctx context.Context, provider string, wrappedDEK []byte) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO encryption_deks (provider, wrapped_deks)
		 VALUES ($1, $2)
		 ON CONFLICT (provider) DO NOTHING`,
		provider, [][]byte{wrappedDEK},
	)
	if err != nil {
		return fmt.Errorf("dekstore: bootstrap: %w", err)
	}
	return nil
}
