package auth

import (
	"context"
	"strconv"
	"time"

	"cinethos/core/subtitle"
	"cinethos/logger"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// LanguageStore is a tier that can answer "what language did this user
// store". found is false when the tier does not know.
type LanguageStore interface {
	GetLanguage(ctx context.Context, userID int64) (lang string, found bool, err error)
}

// LanguageCache is a tier that can also be backfilled.
type LanguageCache interface {
	LanguageStore
	SetLanguage(ctx context.Context, userID int64, lang string) error
}

// PreferenceOptions configures a PreferenceResolver. Every tier is optional.
type PreferenceOptions struct {
	Override string        // wins over every store when set
	TTL      time.Duration // in-process cache lifetime
	Shared   LanguageCache // Redis
	Store    LanguageStore // MySQL
	Logger   *zap.Logger
}

// PreferenceResolver looks a user's subtitle language up in an in-process
// cache, then the shared cache, then the database, backfilling the faster
// tiers on the way out.
type PreferenceResolver struct {
	override string
	local    *gocache.Cache
	shared   LanguageCache
	store    LanguageStore
	log      *zap.Logger
}

func NewPreferenceResolver(opts PreferenceOptions) *PreferenceResolver {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("preference")
	}
	return &PreferenceResolver{
		override: opts.Override,
		local:    gocache.New(opts.TTL, 2*opts.TTL),
		shared:   opts.Shared,
		store:    opts.Store,
		log:      opts.Logger,
	}
}

// Resolve returns the stored preference of userID. Lookup failures degrade
// to "no preference" rather than failing the session.
func (r *PreferenceResolver) Resolve(ctx context.Context, userID int64) subtitle.Preference {
	if r.override != "" {
		return subtitle.Prefer(r.override)
	}
	if userID == 0 {
		return subtitle.NoPreference
	}

	key := strconv.FormatInt(userID, 10)
	if v, ok := r.local.Get(key); ok {
		return subtitle.Prefer(v.(string))
	}

	if r.shared != nil {
		lang, found, err := r.shared.GetLanguage(ctx, userID)
		switch {
		case err != nil:
			r.log.Warn("shared preference cache unavailable", zap.Int64("user", userID), zap.Error(err))
		case found:
			r.local.SetDefault(key, lang)
			return subtitle.Prefer(lang)
		}
	}

	if r.store == nil {
		return subtitle.NoPreference
	}
	lang, found, err := r.store.GetLanguage(ctx, userID)
	if err != nil {
		r.log.Warn("preference store unavailable", zap.Int64("user", userID), zap.Error(err))
		return subtitle.NoPreference
	}
	if !found {
		lang = ""
	}

	r.local.SetDefault(key, lang)
	if r.shared != nil {
		if err := r.shared.SetLanguage(ctx, userID, lang); err != nil {
			r.log.Debug("preference backfill failed", zap.Int64("user", userID), zap.Error(err))
		}
	}
	return subtitle.Prefer(lang)
}

// Forget drops the in-process entry of userID, after the user changed it.
func (r *PreferenceResolver) Forget(userID int64) {
	r.local.Delete(strconv.FormatInt(userID, 10))
}
