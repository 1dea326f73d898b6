package pinterest

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/distlock"
)

// TokenStore reads and persists token bundles.
type TokenStore interface {
	GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error)
	UpdatePinterestAuth(ctx context.Context, a *domain.PinterestAuth) error
}

// Authenticator refreshes tenant OAuth tokens. Concurrent refreshes for
// the same tenant are serialised through a distributed lock so two
// pipelines cannot race a one-time-use refresh token.
type Authenticator struct {
	conf  *oauth2.Config
	store TokenStore
	redis *redis.Client
	db    *sql.DB
}

// NewAuthenticator wires the OAuth app credentials. tokenURL defaults to
// the production token endpoint when empty.
func NewAuthenticator(appID, appSecret, tokenURL string, store TokenStore, redisClient *redis.Client, db *sql.DB) *Authenticator {
	if tokenURL == "" {
		tokenURL = DefaultBaseURL + "/oauth/token"
	}
	return &Authenticator{
		conf: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store: store,
		redis: redisClient,
		db:    db,
	}
}

// EnsureFresh returns a non-expired token bundle, refreshing and
// persisting it if needed. Returns AuthExpired when no refresh is
// possible.
func (a *Authenticator) EnsureFresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error) {
	op := "pinterest.EnsureFresh"
	if !auth.Expired(time.Now()) {
		return auth, nil
	}
	if auth.RefreshToken == "" {
		return nil, joberr.Newf(joberr.AuthExpired, op, "token expired for tenant %s and no refresh token", auth.TenantID)
	}
	return a.Refresh(ctx, auth)
}

// contendedRefreshWait is how long a task losing the refresh lock waits
// before reading the bundle the winner persisted.
var contendedRefreshWait = 2 * time.Second

// Refresher returns a TokenRefresher bound to one tenant's bundle, for
// swapping out a token the platform rejected mid-run. The bundle is
// updated in place so later calls in the same task see the new token.
func (a *Authenticator) Refresher(auth *domain.PinterestAuth) TokenRefresher {
	return func(ctx context.Context) (string, error) {
		if auth.RefreshToken == "" {
			return "", joberr.Newf(joberr.AuthExpired, "pinterest.Refresher",
				"token rejected for tenant %s and no refresh token", auth.TenantID)
		}
		refreshed, err := a.Refresh(ctx, auth)
		if err != nil {
			return "", err
		}
		*auth = *refreshed
		return refreshed.AccessToken, nil
	}
}

// Refresh exchanges the refresh token for a new bundle inside a
// per-tenant critical section and persists the result.
func (a *Authenticator) Refresh(ctx context.Context, auth *domain.PinterestAuth) (*domain.PinterestAuth, error) {
	op := "pinterest.Refresh"

	lock := distlock.NewLock(a.redis, a.db, distlock.TenantRefreshKey(auth.TenantID.String()), 30*time.Second)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, joberr.New(joberr.Transient, op, err)
	}
	if !acquired {
		// Another task is refreshing right now; wait a beat and pick up
		// whatever it persisted.
		select {
		case <-time.After(contendedRefreshWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		stored, err := a.store.GetPinterestAuth(ctx, auth.TenantID)
		if err != nil || stored == nil {
			return auth, nil
		}
		return stored, nil
	}
	defer lock.Release(ctx)

	src := a.conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Expiry:       auth.ExpiresAt,
	})
	tok, err := src.Token()
	if err != nil {
		return nil, joberr.New(joberr.AuthExpired, op, err)
	}

	refreshed := &domain.PinterestAuth{
		TenantID:     auth.TenantID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = auth.RefreshToken
	}
	if err := a.store.UpdatePinterestAuth(ctx, refreshed); err != nil {
		// The platform already rotated the token; losing the write means
		// the next run refreshes again, which is safe.
		log.Printf("[PinterestAuth] failed to persist refreshed token for tenant %s: %v", auth.TenantID, err)
	}
	log.Printf("[PinterestAuth] refreshed token for tenant %s, expires %s", auth.TenantID, refreshed.ExpiresAt.Format(time.RFC3339))
	return refreshed, nil
}
