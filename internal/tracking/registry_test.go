package tracking_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/geo"
	"github.com/example/fieldserve/internal/tracking"
)

func mustSession(t *testing.T, id uuid.UUID) *tracking.Session {
	t.Helper()
	session, err := tracking.NewSession(id, uuid.New(), kmNorth(5), jobSite, geo.DefaultEstimator(), stubClock{t: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	return session
}

func TestRegistryCreateRejectsDuplicateID(t *testing.T) {
	registry := tracking.NewRegistry()
	id := uuid.New()
	require.NoError(t, registry.Create(mustSession(t, id)))
	require.ErrorIs(t, registry.Create(mustSession(t, id)), domain.ErrSessionExists)
	require.Equal(t, 1, registry.Len())
}

func TestRegistryGetUnknownID(t *testing.T) {
	registry := tracking.NewRegistry()
	_, err := registry.Get(uuid.New())
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistryApplyRunsAgainstStoredSession(t *testing.T) {
	registry := tracking.NewRegistry()
	id := uuid.New()
	require.NoError(t, registry.Create(mustSession(t, id)))

	err := registry.Apply(id, func(s *tracking.Session) error {
		_, err := s.Report(kmNorth(2), time.Unix(10, 0))
		return err
	})
	require.NoError(t, err)

	session, err := registry.Get(id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusEnRoute, session.Status())
}

func TestRegistryRemoveAfterGracePeriod(t *testing.T) {
	registry := tracking.NewRegistry()
	id := uuid.New()
	require.NoError(t, registry.Create(mustSession(t, id)))

	registry.RemoveAfter(id, 30*time.Millisecond)

	// Final snapshot stays retrievable during the grace period.
	_, err := registry.Get(id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := registry.Get(id)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestRegistryConcurrentAccessAcrossSessions(t *testing.T) {
	registry := tracking.NewRegistry()
	ids := make([]uuid.UUID, 32)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, registry.Create(mustSession(t, ids[i])))
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				_ = registry.Apply(id, func(s *tracking.Session) error {
					_, err := s.Report(kmNorth(float64(n%5)+1), time.Unix(int64(n), 0))
					return err
				})
			}
		}(i, id)
	}
	wg.Wait()

	for _, id := range ids {
		session, err := registry.Get(id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusEnRoute, session.Status())
	}
}
