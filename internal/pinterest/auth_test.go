package pinterest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/joberr"
	"github.com/ignite/podpilot/internal/pkg/distlock"
)

type fakeTokenStore struct {
	stored *domain.PinterestAuth
	reads  int
}

func (f *fakeTokenStore) GetPinterestAuth(ctx context.Context, tenantID uuid.UUID) (*domain.PinterestAuth, error) {
	f.reads++
	return f.stored, nil
}

func (f *fakeTokenStore) UpdatePinterestAuth(ctx context.Context, a *domain.PinterestAuth) error {
	f.stored = a
	return nil
}

func TestRefresh_ContendedLockPicksUpPersistedBundle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tenantID := uuid.New()
	// Another task holds the refresh lock and has already persisted the
	// bundle it rotated to.
	mr.Set("lock:"+distlock.TenantRefreshKey(tenantID.String()), "other-task")
	st := &fakeTokenStore{stored: &domain.PinterestAuth{
		TenantID:    tenantID,
		AccessToken: "pina_rotated_token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}

	oldWait := contendedRefreshWait
	contendedRefreshWait = time.Millisecond
	defer func() { contendedRefreshWait = oldWait }()

	a := NewAuthenticator("app-id", "app-secret", "", st, client, nil)
	got, err := a.Refresh(context.Background(), &domain.PinterestAuth{
		TenantID:     tenantID,
		AccessToken:  "pina_stale_token",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got.AccessToken != "pina_rotated_token" {
		t.Errorf("AccessToken = %q, want the persisted bundle", got.AccessToken)
	}
	if st.reads != 1 {
		t.Errorf("store reads = %d, want 1", st.reads)
	}
}

func TestRefresher_NoRefreshTokenIsAuthExpired(t *testing.T) {
	a := NewAuthenticator("app-id", "app-secret", "", &fakeTokenStore{}, nil, nil)
	refresh := a.Refresher(&domain.PinterestAuth{TenantID: uuid.New()})

	_, err := refresh(context.Background())
	if !joberr.Is(err, joberr.AuthExpired) {
		t.Fatalf("error = %v, want AuthExpired", err)
	}
}
