package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/NordCoder/Passage/internal/obs/retry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu   sync.Mutex
	msgs map[string]*outbox.Message
}

func newMemRepo() *memRepo { return &memRepo{msgs: map[string]*outbox.Message{}} }

func (r *memRepo) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[key]; ok {
		return nil
	}
	r.msgs[key] = &outbox.Message{IdempotencyKey: key, Kind: kind, Data: data, Status: outbox.StatusCreated, CreatedAt: time.Now()}
	return nil
}

func (r *memRepo) PickBatch(_ context.Context, batch int, _ time.Duration) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Message
	for _, m := range r.msgs {
		if len(out) == batch {
			break
		}
		if m.Status == outbox.StatusCreated {
			m.Status = outbox.StatusInProgress
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.msgs[k].Status = outbox.StatusSuccess
	}
	return nil
}

func (r *memRepo) statuses() map[outbox.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[outbox.Status]int{}
	for _, m := range r.msgs {
		out[m.Status]++
	}
	return out
}

type recPublisher struct {
	mu   sync.Mutex
	evs  []outbox.AccountEvent
	fail int
}

func (p *recPublisher) PublishAccountEvent(_ context.Context, ev outbox.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("broker unavailable")
	}
	p.evs = append(p.evs, ev)
	return nil
}

func (p *recPublisher) events() []outbox.AccountEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]outbox.AccountEvent(nil), p.evs...)
}

type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

func testPolicy() retry.Policy { return retry.Policy{Name: "test", Attempts: 3, Backoff: noWait{}} }

func TestEnqueueAccountEvent(t *testing.T) {
	repo := newMemRepo()
	u := &user.User{ID: uuid.New(), Username: "ana", Email: "ana@x.io"}
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, EnqueueAccountEvent(context.Background(), repo, outbox.KindSessionStarted, u, at))
	require.NoError(t, EnqueueAccountEvent(context.Background(), repo, outbox.KindSessionStarted, u, at))
	require.Len(t, repo.msgs, 2, "each event gets its own key")

	for _, m := range repo.msgs {
		var ev outbox.AccountEvent
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		assert.Equal(t, "session.started", ev.Kind)
		assert.Equal(t, u.ID, ev.UserID)
		assert.Equal(t, at, ev.At)
	}
}

func TestGlobalHandler_PublishesEveryKind(t *testing.T) {
	pub := &recPublisher{}
	dispatch := MakeGlobalOutboxHandler(pub, testPolicy())
	u := &user.User{ID: uuid.New(), Username: "ana", Email: "ana@x.io"}

	kinds := []outbox.Kind{
		outbox.KindAccountRegistered, outbox.KindSessionStarted,
		outbox.KindSessionEnded, outbox.KindPasswordChanged,
	}
	for _, k := range kinds {
		repo := newMemRepo()
		require.NoError(t, EnqueueAccountEvent(context.Background(), repo, k, u, time.Now()))
		h, err := dispatch(k)
		require.NoError(t, err)
		for _, m := range repo.msgs {
			require.NoError(t, h(context.Background(), m.Data))
		}
	}

	got := pub.events()
	require.Len(t, got, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k.String(), got[i].Kind)
	}

	_, err := dispatch(outbox.Kind(99))
	assert.Error(t, err)
}

func TestGlobalHandler_RejectsKindMismatch(t *testing.T) {
	h, err := MakeGlobalOutboxHandler(&recPublisher{}, testPolicy())(outbox.KindSessionEnded)
	require.NoError(t, err)
	assert.Error(t, h(context.Background(), []byte(`{"kind":"password.changed"}`)))
}

func TestGlobalHandler_BadPayloadIsNotRetried(t *testing.T) {
	pub := &recPublisher{}
	calls := 0
	pol := testPolicy()
	pol.OnAttempt = func(int, error) { calls++ }
	h, err := MakeGlobalOutboxHandler(pub, pol)(outbox.KindSessionStarted)
	require.NoError(t, err)

	assert.Error(t, h(context.Background(), []byte(`{not json`)))
	assert.Zero(t, calls)
	assert.Empty(t, pub.events())
}

func TestGlobalHandler_RetriesPublish(t *testing.T) {
	pub := &recPublisher{fail: 2}
	h, err := MakeGlobalOutboxHandler(pub, testPolicy())(outbox.KindPasswordChanged)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), []byte(`{"kind":"password.changed"}`)))
	assert.Len(t, pub.events(), 1)
}

func TestRunner_RelaysAndMarksSuccess(t *testing.T) {
	repo := newMemRepo()
	pub := &recPublisher{}
	u := &user.User{ID: uuid.New(), Username: "ana", Email: "ana@x.io"}
	for _, k := range []outbox.Kind{outbox.KindAccountRegistered, outbox.KindSessionStarted} {
		require.NoError(t, EnqueueAccountEvent(context.Background(), repo, k, u, time.Now()))
	}
	require.NoError(t, repo.Enqueue(context.Background(), "bogus", outbox.Kind(42), []byte(`{}`)))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, testPolicy()), Config{
		Workers:  2,
		WaitTime: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool {
		return repo.statuses()[outbox.StatusSuccess] == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	r.Wait()

	assert.Len(t, pub.events(), 2)
	assert.Equal(t, 1, repo.statuses()[outbox.StatusInProgress], "unknown kind stays unacknowledged")
}
