package identity

import (
	"context"
	"errors"
	"strconv"

	"github.com/consulta/advisor-service/internal/registry/store"
	"github.com/google/uuid"
)

// AccountOwner returns the conversation owner key for a native account.
func AccountOwner(accountID uuid.UUID) string { return accountID.String() }

// BotPlaceholder returns the owner key for an unlinked bot account: the
// decimal form of the platform ID. It can never collide with an account
// UUID in string form.
func BotPlaceholder(platformID int64) string { return strconv.FormatInt(platformID, 10) }

// Resolver maps authenticated actors to conversation owner keys.
type Resolver struct {
	store store.AdvisorStore
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(s store.AdvisorStore) *Resolver { return &Resolver{store: s} }

// ResolveBotOwner returns the owner key for a bot-platform actor: the linked
// account's UUID when a link exists, otherwise the placeholder derived from
// the platform ID. A bot account the store has never seen also resolves to
// the placeholder.
func (r *Resolver) ResolveBotOwner(ctx context.Context, platformID int64) (string, error) {
	bot, err := r.store.GetBotAccount(ctx, platformID)
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		return BotPlaceholder(platformID), nil
	}
	if err != nil {
		return "", err
	}
	if bot.LinkedAccountID != nil {
		return AccountOwner(*bot.LinkedAccountID), nil
	}
	return BotPlaceholder(platformID), nil
}
