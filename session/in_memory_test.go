package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
)

func TestInMemoryService_CreateAndGet(t *testing.T) {
	svc := NewInMemoryService()

	sess, err := svc.Create("app", "user-1", "sess-1", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, "app", sess.AppName)
	v, _ := sess.GetState("k")
	assert.Equal(t, "v", v)

	// Generated ids.
	gen, err := svc.Create("app", "user-1", "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, gen.ID)

	// Duplicates are a configuration error.
	_, err = svc.Create("app", "user-1", "sess-1", nil)
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestInMemoryService_GetNotFound(t *testing.T) {
	svc := NewInMemoryService()
	_, err := svc.Get("app", "user-1", "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestInMemoryService_AppendEventScopesState(t *testing.T) {
	svc := NewInMemoryService()

	sess, err := svc.Create("app", "user-1", "sess-1", nil)
	require.NoError(t, err)

	ev := testutil.NewEventBuilder().
		Author("agent").
		AssistantText("done").
		StateDelta("app:theme", "dark").
		StateDelta("user:lang", "de").
		StateDelta("step", 1).
		Build()

	_, err = svc.AppendEvent(sess, ev)
	require.NoError(t, err)

	// The caller's snapshot was updated in place.
	v, _ := sess.GetState("step")
	assert.Equal(t, 1, v)
	require.Len(t, sess.GetEvents(), 1)

	// Same user, different session: scoped values visible, local not.
	other, err := svc.Create("app", "user-1", "sess-2", nil)
	require.NoError(t, err)
	theme, _ := other.GetState("app:theme")
	lang, _ := other.GetState("user:lang")
	assert.Equal(t, "dark", theme)
	assert.Equal(t, "de", lang)
	_, ok := other.GetState("step")
	assert.False(t, ok)

	// Different user of the same app: only app scope visible.
	stranger, err := svc.Create("app", "user-2", "sess-3", nil)
	require.NoError(t, err)
	theme, _ = stranger.GetState("app:theme")
	assert.Equal(t, "dark", theme)
	_, ok = stranger.GetState("user:lang")
	assert.False(t, ok)

	// Different app: nothing visible.
	foreign, err := svc.Create("other-app", "user-1", "sess-4", nil)
	require.NoError(t, err)
	_, ok = foreign.GetState("app:theme")
	assert.False(t, ok)
}

func TestInMemoryService_AppendEventUnknownSession(t *testing.T) {
	svc := NewInMemoryService()
	ghost := core.NewSession("app", "user-1", "ghost")
	_, err := svc.AppendEvent(ghost, core.NewUserMessageEvent("inv", "hi"))
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestInMemoryService_SnapshotsAreIsolated(t *testing.T) {
	svc := NewInMemoryService()
	sess, err := svc.Create("app", "user-1", "sess-1", nil)
	require.NoError(t, err)

	snap, err := svc.Get("app", "user-1", "sess-1", nil)
	require.NoError(t, err)
	snap.State["poison"] = true

	again, err := svc.Get("app", "user-1", "sess-1", nil)
	require.NoError(t, err)
	_, ok := again.GetState("poison")
	assert.False(t, ok, "mutating a snapshot must not affect the store")

	_ = sess
}

func TestInMemoryService_ListAndDelete(t *testing.T) {
	svc := NewInMemoryService()

	s1, err := svc.Create("app", "user-1", "sess-1", nil)
	require.NoError(t, err)
	_, err = svc.Create("app", "user-1", "sess-2", nil)
	require.NoError(t, err)
	_, err = svc.Create("app", "user-2", "sess-3", nil)
	require.NoError(t, err)

	_, err = svc.AppendEvent(s1, core.NewUserMessageEvent("inv", "hello"))
	require.NoError(t, err)

	sessions, err := svc.List("app", "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Nil(t, s.Events, "List omits event bodies")
	}

	require.NoError(t, svc.Delete("app", "user-1", "sess-1"))
	_, err = svc.Get("app", "user-1", "sess-1", nil)
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))

	// Deleting twice is a no-op.
	assert.NoError(t, svc.Delete("app", "user-1", "sess-1"))
}

func TestInMemoryService_GetFilters(t *testing.T) {
	svc := NewInMemoryService()
	sess, err := svc.Create("app", "user-1", "sess-1", nil)
	require.NoError(t, err)

	var cutoff time.Time
	for i, text := range []string{"one", "two", "three"} {
		ev := core.NewUserMessageEvent("inv", text)
		_, err := svc.AppendEvent(sess, ev)
		require.NoError(t, err)
		if i == 0 {
			cutoff = ev.Timestamp
		}
	}

	recent, err := svc.Get("app", "user-1", "sess-1", &core.GetSessionConfig{NumRecentEvents: 2})
	require.NoError(t, err)
	require.Len(t, recent.Events, 2)
	assert.Equal(t, "two", recent.Events[0].Content.Text())

	after, err := svc.Get("app", "user-1", "sess-1", &core.GetSessionConfig{AfterTimestamp: cutoff})
	require.NoError(t, err)
	require.Len(t, after.Events, 2)
	assert.Equal(t, "two", after.Events[0].Content.Text())
}
