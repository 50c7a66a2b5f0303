package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/socialhub/internal/store"
	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
)

// publishCall はrecordingPublisherが受け取った1回のPublish。
type publishCall struct {
	room    string
	kind    event.Kind
	payload any
}

// recordingPublisher はPublishの呼び出しを記録する。errが設定されている場合はそれを返す。
type recordingPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, room string, kind event.Kind, payload any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{room: room, kind: kind, payload: payload})
	if p.err != nil {
		return 0, p.err
	}
	return 1, nil
}

func (p *recordingPublisher) callsOf(kind event.Kind) []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishCall
	for _, c := range p.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// staticNames はテスト用の表示名解決。
type staticNames map[string]string

func (n staticNames) DisplayName(_ context.Context, userID string) string {
	return n[userID]
}

// setupTestService はインメモリSQLiteを使用したテスト用サービスを生成する。
func setupTestService(t *testing.T) (*Service, *store.Store, *recordingPublisher) {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pub := &recordingPublisher{}
	svc := NewService(st, pub, staticNames{"alice": "Alice"}, zerolog.Nop())

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, st, pub
}

func TestKindValid(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		assert.True(t, k.Valid(), "%s", k)
	}
	assert.False(t, Kind("poke").Valid())
	assert.False(t, Kind("").Valid())
}

func TestCreateNotification(t *testing.T) {
	t.Parallel()

	t.Run("永続化してから個人ルームへ配信すること", func(t *testing.T) {
		t.Parallel()

		svc, st, pub := setupTestService(t)
		ctx := context.Background()

		n, err := svc.CreateNotification(ctx, CreateInput{
			UserID: "bob", Kind: KindPostLike, Content: "Alice liked your post",
			ReferenceID: "p1", ReferenceType: "post",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, n.ID)
		assert.Nil(t, n.ReadAt)

		calls := pub.callsOf(event.KindNewNotification)
		require.Len(t, calls, 1)
		assert.Equal(t, "user:bob", calls[0].room)
		assert.Equal(t, *n, calls[0].payload)

		row, err := st.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, "post_like", row.Kind)
	})

	t.Run("未定義の種類はValidationErrorになり何も書き込まないこと", func(t *testing.T) {
		t.Parallel()

		svc, st, pub := setupTestService(t)
		ctx := context.Background()

		_, err := svc.CreateNotification(ctx, CreateInput{UserID: "bob", Kind: "poke", Content: "hey"})
		require.ErrorIs(t, err, apperr.ErrValidation)
		for _, k := range Kinds() {
			assert.Contains(t, err.Error(), string(k), "指定可能な種類をエラーに含めること")
		}

		count, err := st.CountNotifications(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, pub.calls)
	})

	t.Run("必須項目が空の場合はValidationErrorになること", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupTestService(t)
		tests := []CreateInput{
			{Kind: KindNewFollower, Content: "x"},
			{UserID: "bob", Kind: KindNewFollower, Content: "   "},
			{UserID: "bob", Content: "x"},
			{UserID: "bob", Kind: KindNewFollower, Content: "x", ReferenceID: "u1"},
		}
		for _, in := range tests {
			_, err := svc.CreateNotification(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
		}
	})

	t.Run("永続化に失敗した場合はPersistenceErrorになり配信しないこと", func(t *testing.T) {
		t.Parallel()

		svc, st, pub := setupTestService(t)
		require.NoError(t, st.Close())

		_, err := svc.CreateNotification(context.Background(), CreateInput{
			UserID: "bob", Kind: KindNewFollower, Content: "Alice followed you",
		})
		require.ErrorIs(t, err, apperr.ErrPersistence)
		assert.Empty(t, pub.calls)
	})

	t.Run("配信に失敗しても通知は保存され返されること", func(t *testing.T) {
		t.Parallel()

		svc, st, pub := setupTestService(t)
		pub.err = apperr.ErrBusClosed

		n, err := svc.CreateNotification(context.Background(), CreateInput{
			UserID: "bob", Kind: KindNewFollower, Content: "Alice followed you",
		})
		require.NoError(t, err)

		_, err = st.GetNotification(context.Background(), n.ID)
		assert.NoError(t, err)
		assert.Len(t, pub.calls, 1)
	})
}

func TestNotificationRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateNotification(ctx, CreateInput{
		UserID: "bob", Kind: KindPostComment, Content: "Alice commented",
		ReferenceID: "c9", ReferenceType: "comment",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Kind, got.Kind)
	assert.Equal(t, created.Content, got.Content)
	assert.Equal(t, created.ReferenceID, got.ReferenceID)
	assert.Equal(t, created.ReferenceType, got.ReferenceType)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.ReadAt)
	assert.False(t, got.IsRead())

	_, err = svc.MarkAllRead(ctx, "bob")
	require.NoError(t, err)

	got, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ReadAt)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()

	svc, _, pub := setupTestService(t)
	ctx := context.Background()
	for range 3 {
		_, err := svc.CreateNotification(ctx, CreateInput{UserID: "bob", Kind: KindNewFollower, Content: "x"})
		require.NoError(t, err)
	}
	_, err := svc.CreateNotification(ctx, CreateInput{UserID: "carol", Kind: KindNewFollower, Content: "x"})
	require.NoError(t, err)

	updated, err := svc.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)
	count, err := svc.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count)

	updated, err = svc.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, updated)
	count, err = svc.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = svc.UnreadCount(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "他のユーザーの通知は変更しないこと")

	calls := pub.callsOf(event.KindUnreadCount)
	require.Len(t, calls, 2)
	assert.Equal(t, "user:bob", calls[0].room)
	assert.Equal(t, event.UnreadCountData{Count: 0}, calls[0].payload)
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	n, err := svc.CreateNotification(ctx, CreateInput{UserID: "bob", Kind: KindNewFollower, Content: "x"})
	require.NoError(t, err)

	t.Run("他のユーザーの通知はForbiddenになること", func(t *testing.T) {
		_, err := svc.MarkRead(ctx, "mallory", n.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("存在しない通知はNotFoundになること", func(t *testing.T) {
		_, err := svc.MarkRead(ctx, "bob", "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("既読日時は最初に既読にした時刻から変わらないこと", func(t *testing.T) {
		first, err := svc.MarkRead(ctx, "bob", n.ID)
		require.NoError(t, err)
		require.NotNil(t, first.ReadAt)

		second, err := svc.MarkRead(ctx, "bob", n.ID)
		require.NoError(t, err)
		assert.True(t, first.ReadAt.Equal(*second.ReadAt))

		_, err = svc.MarkAllRead(ctx, "bob")
		require.NoError(t, err)
		third, err := svc.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, first.ReadAt.Equal(*third.ReadAt))
	})
}

func TestListNotifications(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	ctx := context.Background()
	var ids []string
	for range 4 {
		n, err := svc.CreateNotification(ctx, CreateInput{UserID: "bob", Kind: KindNewFollower, Content: "x"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	_, err := svc.MarkRead(ctx, "bob", ids[0])
	require.NoError(t, err)

	all, err := svc.List(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "新しい順に並ぶこと")

	limited, err := svc.List(ctx, "bob", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	unread, err := svc.ListUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, unread, 3)

	empty, err := svc.List(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestNotifyNewMessage(t *testing.T) {
	t.Parallel()

	svc, _, pub := setupTestService(t)
	ctx := context.Background()

	created, err := svc.NotifyNewMessage(ctx,
		ConversationRef{ID: "42", ParticipantIDs: []string{"alice", "bob", "carol", "bob"}},
		MessageRef{ID: "m1", SenderID: "alice"},
	)
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, n := range created {
		assert.NotEqual(t, "alice", n.UserID, "送信者には通知しないこと")
		assert.Equal(t, KindNewMessage, n.Kind)
		assert.Equal(t, "New message from Alice", n.Content)
		assert.Equal(t, "m1", n.ReferenceID)
		assert.Equal(t, ReferenceMessage, n.ReferenceType)
	}

	rooms := []string{}
	for _, c := range pub.callsOf(event.KindNewNotification) {
		rooms = append(rooms, c.room)
	}
	assert.ElementsMatch(t, []string{"user:bob", "user:carol"}, rooms)

	t.Run("表示名が解決できない場合はユーザーIDを使用すること", func(t *testing.T) {
		created, err := svc.NotifyNewMessage(ctx,
			ConversationRef{ID: "7", ParticipantIDs: []string{"zed", "bob"}},
			MessageRef{ID: "m2", SenderID: "zed"},
		)
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, "New message from zed", created[0].Content)
	})

	t.Run("送信者しかいない会話では何も作成しないこと", func(t *testing.T) {
		created, err := svc.NotifyNewMessage(ctx,
			ConversationRef{ID: "8", ParticipantIDs: []string{"alice"}},
			MessageRef{ID: "m3", SenderID: "alice"},
		)
		require.NoError(t, err)
		assert.Empty(t, created)
	})
}

func TestNotifyInvitations(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	ev, err := svc.NotifyEventInvitation(ctx, EventRef{ID: "e1", Title: "Go Meetup"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, KindEventInvitation, ev.Kind)
	assert.Equal(t, "You have been invited to Go Meetup", ev.Content)
	assert.Equal(t, "e1", ev.ReferenceID)
	assert.Equal(t, ReferenceEvent, ev.ReferenceType)

	grp, err := svc.NotifyGroupInvitation(ctx, GroupRef{ID: "g1", Name: "Gophers"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, KindGroupInvitation, grp.Kind)
	assert.Equal(t, ReferenceGroup, grp.ReferenceType)

	_, err = svc.NotifyEventInvitation(ctx, EventRef{ID: "e2"}, "bob")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.NotifyGroupInvitation(ctx, GroupRef{ID: "g2", Name: "Gophers"}, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
