package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/nao1215/socialhub/internal/realtime"
	"github.com/nao1215/socialhub/internal/store"
	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
)

// DefaultListLimit は一覧取得の件数を指定しない場合の上限。
const DefaultListLimit = 50

// Publisher はルームへのイベント配信を行う。realtime.Bus が実装する。
type Publisher interface {
	Publish(ctx context.Context, room string, kind event.Kind, payload any) (int, error)
}

// NameResolver はユーザーIDから表示名を解決する。
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

// Notification は利用者に返す通知。
type Notification struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Kind は通知の種類。
	Kind Kind `json:"type"`
	// Content は表示用の本文。
	Content string `json:"content"`
	// ReferenceID は通知の発生元エンティティのID。
	ReferenceID string `json:"reference_id,omitempty"`
	// ReferenceType は通知の発生元エンティティの種類。
	ReferenceType string `json:"reference_type,omitempty"`
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time `json:"created_at"`
	// ReadAt は既読日時。未読の場合はnil。
	ReadAt *time.Time `json:"read_at"`
}

// IsRead は既読かどうかを返す。
func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// CreateInput は CreateNotification の入力。
type CreateInput struct {
	UserID        string `json:"user_id" validate:"required"`
	Kind          Kind   `json:"type" validate:"required,notification_kind"`
	Content       string `json:"content" validate:"required,max=1000"`
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type" validate:"required_with=ReferenceID"`
}

// ConversationRef は通知対象の会話。
type ConversationRef struct {
	ID             string
	ParticipantIDs []string
}

// MessageRef は通知対象のメッセージ。
type MessageRef struct {
	ID       string
	SenderID string
}

// EventRef は招待元のイベント。
type EventRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GroupRef は招待元のグループ。
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service は通知の作成と既読管理を行う。
type Service struct {
	store     *store.Store
	publisher Publisher
	names     NameResolver
	validate  *validator.Validate
	logger    zerolog.Logger
	// now はテストで時刻を固定するために差し替える。
	now func() time.Time
}

// NewService は通知サービスを生成する。
func NewService(st *store.Store, publisher Publisher, names NameResolver, logger zerolog.Logger) *Service {
	v := validator.New()
	_ = v.RegisterValidation("notification_kind", func(fl validator.FieldLevel) bool {
		return Kind(fl.Field().String()).Valid()
	})

	return &Service{
		store:     st,
		publisher: publisher,
		names:     names,
		validate:  v,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateNotification は通知を永続化し、受信者の個人ルームへ new_notification を配信する。
// 永続化に失敗した場合は配信しない。配信の失敗はログに記録するだけで、通知は返す。
func (s *Service) CreateNotification(ctx context.Context, in CreateInput) (*Notification, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Content = strings.TrimSpace(in.Content)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	n := Notification{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Kind:          in.Kind,
		Content:       in.Content,
		ReferenceID:   in.ReferenceID,
		ReferenceType: in.ReferenceType,
		CreatedAt:     s.now(),
	}

	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		return q.CreateNotification(ctx, store.CreateNotificationParams{
			ID:            n.ID,
			UserID:        n.UserID,
			Kind:          string(n.Kind),
			Content:       n.Content,
			ReferenceID:   n.ReferenceID,
			ReferenceType: n.ReferenceType,
			CreatedAt:     n.CreatedAt,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("通知の保存", err)
	}

	s.publish(ctx, n.UserID, event.KindNewNotification, n)
	return &n, nil
}

// NotifyNewMessage は送信者以外の参加者全員に new_message 通知を作成する。
// 会話ルームに参加しているかどうかに関わらず通知する。
// 一部の参加者で失敗しても残りの参加者への通知は続け、失敗をまとめて返す。
func (s *Service) NotifyNewMessage(ctx context.Context, conversation ConversationRef, message MessageRef) ([]Notification, error) {
	recipients := lo.Uniq(lo.Without(conversation.ParticipantIDs, message.SenderID))
	if len(recipients) == 0 {
		return []Notification{}, nil
	}

	content := fmt.Sprintf("New message from %s", s.displayName(ctx, message.SenderID))
	created := make([]Notification, 0, len(recipients))
	var errs []error
	for _, userID := range recipients {
		n, err := s.CreateNotification(ctx, CreateInput{
			UserID:        userID,
			Kind:          KindNewMessage,
			Content:       content,
			ReferenceID:   message.ID,
			ReferenceType: ReferenceMessage,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("ユーザー %s への通知に失敗: %w", userID, err))
			continue
		}
		created = append(created, *n)
	}
	return created, errors.Join(errs...)
}

// NotifyEventInvitation はイベントへの招待通知を作成する。
func (s *Service) NotifyEventInvitation(ctx context.Context, ev EventRef, inviteeID string) (*Notification, error) {
	if ev.ID == "" || strings.TrimSpace(ev.Title) == "" {
		return nil, apperr.Validation("イベントIDとタイトルは必須です")
	}
	return s.CreateNotification(ctx, CreateInput{
		UserID:        inviteeID,
		Kind:          KindEventInvitation,
		Content:       fmt.Sprintf("You have been invited to %s", ev.Title),
		ReferenceID:   ev.ID,
		ReferenceType: ReferenceEvent,
	})
}

// NotifyGroupInvitation はグループへの招待通知を作成する。
func (s *Service) NotifyGroupInvitation(ctx context.Context, group GroupRef, inviteeID string) (*Notification, error) {
	if group.ID == "" || strings.TrimSpace(group.Name) == "" {
		return nil, apperr.Validation("グループIDと名前は必須です")
	}
	return s.CreateNotification(ctx, CreateInput{
		UserID:        inviteeID,
		Kind:          KindGroupInvitation,
		Content:       fmt.Sprintf("You have been invited to join %s", group.Name),
		ReferenceID:   group.ID,
		ReferenceType: ReferenceGroup,
	})
}

// Get はIDで通知を取得する。
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	row, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("通知の取得", err)
	}
	n := fromRow(row)
	return &n, nil
}

// List はユーザーの通知を新しい順に最大limit件返す。limitが0以下の場合は DefaultListLimit を使用する。
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.store.ListNotifications(ctx, userID, int64(limit))
	if err != nil {
		return nil, apperr.Persistence("通知一覧の取得", err)
	}
	return lo.Map(rows, func(row store.Notification, _ int) Notification { return fromRow(row) }), nil
}

// ListUnread はユーザーの未読通知を新しい順に返す。
func (s *Service) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.store.ListUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("未読通知一覧の取得", err)
	}
	return lo.Map(rows, func(row store.Notification, _ int) Notification { return fromRow(row) }), nil
}

// UnreadCount はユーザーの未読通知数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, apperr.Persistence("未読通知数の取得", err)
	}
	return count, nil
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、既読にした件数を返す。
// 何度呼び出しても結果は同じになる。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var updated int64
	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		var err error
		updated, err = q.MarkAllNotificationsRead(ctx, userID, s.now())
		return err
	})
	if err != nil {
		return 0, apperr.Persistence("全通知の既読処理", err)
	}

	s.publishUnreadCount(ctx, userID)
	return updated, nil
}

// MarkRead は通知を1件既読にする。既読済みの通知のread_atは変更しない。
// 他のユーザーの通知の場合は apperr.ErrForbidden を返す。
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	var row store.Notification
	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		current, err := q.GetNotification(ctx, notificationID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return apperr.Forbidden("通知 %s を操作する権限がありません", notificationID)
		}
		if _, err := q.MarkNotificationRead(ctx, notificationID, s.now()); err != nil {
			return err
		}
		row, err = q.GetNotification(ctx, notificationID)
		return err
	})
	if err != nil {
		return nil, apperr.Persistence("通知の既読処理", err)
	}

	s.publishUnreadCount(ctx, userID)
	n := fromRow(row)
	return &n, nil
}

// publish は個人ルームへ配信する。失敗してもエラーは返さない。
func (s *Service) publish(ctx context.Context, userID string, kind event.Kind, payload any) {
	room := realtime.UserRoom(userID)
	delivered, err := s.publisher.Publish(ctx, room, kind, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room).Str("kind", string(kind)).Msg("リアルタイム配信に失敗")
		return
	}
	s.logger.Debug().Str("room", room).Str("kind", string(kind)).Int("delivered", delivered).Msg("通知イベントを配信")
}

func (s *Service) publishUnreadCount(ctx context.Context, userID string) {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("未読通知数の取得に失敗")
		return
	}
	s.publish(ctx, userID, event.KindUnreadCount, event.UnreadCountData{Count: count})
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	if s.names == nil {
		return userID
	}
	if name := s.names.DisplayName(ctx, userID); name != "" {
		return name
	}
	return userID
}

func fromRow(row store.Notification) Notification {
	n := Notification{
		ID:            row.ID,
		UserID:        row.UserID,
		Kind:          Kind(row.Kind),
		Content:       row.Content,
		ReferenceID:   row.ReferenceID.String,
		ReferenceType: row.ReferenceType.String,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.ReadAt.Valid {
		n.ReadAt = lo.ToPtr(row.ReadAt.Time.UTC())
	}
	return n
}

// validationError はvalidatorのエラーを apperr.ErrValidation に変換する。
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Tag() == "notification_kind" {
			kinds := lo.Map(Kinds(), func(k Kind, _ int) string { return string(k) })
			return fmt.Sprintf("%s(%sのいずれかを指定してください)", fe.Field(), strings.Join(kinds, ", "))
		}
		return fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag())
	})
	return apperr.Validation("不正な項目: %s", strings.Join(fields, ", "))
}
