package identity

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/consulta/advisor-service/internal/model"
	"github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/security"
	"github.com/google/uuid"
)

// Linker establishes identity links between native accounts and bot-platform
// accounts. Automatic linking is silent: it fires only on an unambiguous
// handle match, never overwrites an existing link, and reports nothing to
// the interaction that triggered it.
type Linker struct {
	store store.AdvisorStore
}

// NewLinker creates a linker backed by the given store.
func NewLinker(s store.AdvisorStore) *Linker { return &Linker{store: s} }

// Link establishes an explicit link between the bot account and the native
// account. Unlike automatic linking, failures surface to the caller:
// NotFoundError when the bot account is unknown, ConflictError when either
// side is already linked elsewhere. Re-asserting an identical link succeeds.
func (l *Linker) Link(ctx context.Context, platformID int64, accountID uuid.UUID) error {
	if err := l.store.SetLink(ctx, platformID, accountID); err != nil {
		return err
	}
	if security.IdentityLinksTotal != nil {
		security.IdentityLinksTotal.WithLabelValues("explicit").Inc()
	}
	return nil
}

// AutoLinkBotAccount attempts a silent link for a freshly upserted bot
// account: when its normalized handle matches exactly one native account,
// the link is set. Zero matches, several matches, or an already-occupied
// side all leave the state untouched.
func (l *Linker) AutoLinkBotAccount(ctx context.Context, bot *model.BotAccount) {
	if bot == nil || bot.LinkedAccountID != nil || bot.NormalizedHandle == nil {
		return
	}
	matches, err := l.store.FindAccountsByNormalizedHandle(ctx, *bot.NormalizedHandle)
	if err != nil {
		log.Error("Auto-link: account lookup failed", "platformId", bot.PlatformID, "err", err)
		return
	}
	if len(matches) != 1 {
		if len(matches) > 1 {
			log.Debug("Auto-link: ambiguous handle match, skipping", "handle", *bot.NormalizedHandle, "matches", len(matches))
		}
		return
	}
	l.autoLink(ctx, bot.PlatformID, matches[0].ID)
}

// AutoLinkAccount attempts a silent link for a native account whose handle
// was just set or changed: when the normalized handle matches exactly one
// bot account, the link is set.
func (l *Linker) AutoLinkAccount(ctx context.Context, account *model.Account) {
	if account == nil || account.NormalizedHandle == nil {
		return
	}
	matches, err := l.store.FindBotAccountsByNormalizedHandle(ctx, *account.NormalizedHandle)
	if err != nil {
		log.Error("Auto-link: bot account lookup failed", "accountId", account.ID, "err", err)
		return
	}
	if len(matches) != 1 {
		if len(matches) > 1 {
			log.Debug("Auto-link: ambiguous handle match, skipping", "handle", *account.NormalizedHandle, "matches", len(matches))
		}
		return
	}
	l.autoLink(ctx, matches[0].PlatformID, account.ID)
}

func (l *Linker) autoLink(ctx context.Context, platformID int64, accountID uuid.UUID) {
	err := l.store.SetLink(ctx, platformID, accountID)
	var conflict *store.ConflictError
	switch {
	case err == nil:
		log.Info("Auto-linked bot account", "platformId", platformID, "accountId", accountID)
		if security.IdentityLinksTotal != nil {
			security.IdentityLinksTotal.WithLabelValues("auto").Inc()
		}
	case errors.As(err, &conflict):
		// One side is already linked; automatic linking never overwrites.
		log.Debug("Auto-link: side already linked, skipping", "platformId", platformID)
	default:
		log.Error("Auto-link failed", "platformId", platformID, "err", err)
	}
}
