package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/nao1215/socialhub/internal/notification"
	"github.com/nao1215/socialhub/internal/realtime"
	"github.com/nao1215/socialhub/internal/store"
	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
)

// maxContentLength はメッセージ本文の最大文字数。
const maxContentLength = 4000

// Publisher はルームへのイベント配信を行う。realtime.Bus が実装する。
type Publisher interface {
	Publish(ctx context.Context, room string, kind event.Kind, payload any) (int, error)
}

// Notifier は新着メッセージの通知を作成する。notification.Service が実装する。
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conversation notification.ConversationRef, message notification.MessageRef) ([]notification.Notification, error)
}

// Conversation は参加者を含む会話。
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participants"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message は会話内の1件のメッセージ。
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

// Service は会話とメッセージの操作を行う。
type Service struct {
	store     *store.Store
	publisher Publisher
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService はメッセージングサービスを生成する。
func NewService(st *store.Store, publisher Publisher, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With().Str("component", "messaging").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage はメッセージを保存し、会話ルームへ配信したあと、送信者以外の参加者に通知する。
// 本文が空の場合は apperr.ErrValidation、会話が存在しないか送信者が参加者でない場合は
// apperr.ErrNotFound を返し、何も保存・配信しない。
// 本文は空白を含めて送信されたまま保存する。
// 通知の作成に失敗してもメッセージは送信済みとして扱う。
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("メッセージ本文は必須です")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, apperr.Validation("メッセージ本文は%d文字以内で指定してください", maxContentLength)
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now(),
	}

	var participants []string
	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		if err := requireParticipant(ctx, q, conversationID, senderID); err != nil {
			return err
		}
		if err := q.CreateMessage(ctx, store.CreateMessageParams{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		}); err != nil {
			return err
		}
		if _, err := q.TouchConversation(ctx, conversationID, msg.CreatedAt); err != nil {
			return err
		}
		var err error
		participants, err = q.ListParticipants(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, apperr.Persistence("メッセージの保存", err)
	}

	room := realtime.ConversationRoom(conversationID)
	if _, err := s.publisher.Publish(ctx, room, event.KindNewMessage, msg); err != nil {
		s.logger.Warn().Err(err).Str("room", room).Str("message_id", msg.ID).Msg("メッセージの配信に失敗")
	}

	_, err = s.notifier.NotifyNewMessage(ctx,
		notification.ConversationRef{ID: conversationID, ParticipantIDs: participants},
		notification.MessageRef{ID: msg.ID, SenderID: senderID},
	)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Str("message_id", msg.ID).
			Msg("新着メッセージ通知の作成に失敗")
	}
	return &msg, nil
}

// SetTyping は会話ルームへ user_typing を1回配信する。永続化は行わない。
// 参加者でない場合は apperr.ErrNotFound を返す。
func (s *Service) SetTyping(ctx context.Context, conversationID, userID string) error {
	if err := requireParticipant(ctx, s.store.Queries, conversationID, userID); err != nil {
		return apperr.Persistence("参加者の確認", err)
	}

	_, err := s.publisher.Publish(ctx, realtime.ConversationRoom(conversationID), event.KindUserTyping,
		event.TypingData{UserID: userID, ConversationID: conversationID})
	return err
}

// History は会話のメッセージを古い順にすべて返す。
func (s *Service) History(ctx context.Context, conversationID string) ([]Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, apperr.Persistence("会話の取得", err)
	}
	rows, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Persistence("メッセージ履歴の取得", err)
	}
	return lo.Map(rows, func(row store.Message, _ int) Message { return messageFromRow(row) }), nil
}

// CreateConversation は作成者を含む2人以上の参加者で会話を作成する。重複した参加者は1人として扱う。
func (s *Service) CreateConversation(ctx context.Context, creatorID string, participantIDs []string) (*Conversation, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, apperr.Validation("作成者のユーザーIDは必須です")
	}
	ids := lo.Uniq(append([]string{creatorID}, lo.Compact(lo.Map(participantIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	}))...))
	if len(ids) < 2 {
		return nil, apperr.Validation("会話には作成者以外の参加者が1人以上必要です")
	}

	now := s.now()
	conv := Conversation{
		ID:             uuid.NewString(),
		ParticipantIDs: ids,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		if err := q.CreateConversation(ctx, conv.ID, now); err != nil {
			return err
		}
		for _, id := range ids {
			if err := q.AddParticipant(ctx, conv.ID, id, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("会話の作成", err)
	}
	return &conv, nil
}

// GetConversation は参加者を含む会話を返す。
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	row, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.Persistence("会話の取得", err)
	}
	participants, err := s.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, apperr.Persistence("参加者の取得", err)
	}
	conv := conversationFromRow(row, participants)
	return &conv, nil
}

// ListConversations はユーザーが参加する会話を最終更新の新しい順に返す。
func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.store.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("会話一覧の取得", err)
	}

	conversations := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		participants, err := s.store.ListParticipants(ctx, row.ID)
		if err != nil {
			return nil, apperr.Persistence("参加者の取得", err)
		}
		conversations = append(conversations, conversationFromRow(row, participants))
	}
	return conversations, nil
}

// IsParticipant はユーザーが会話の参加者かどうかを返す。会話が存在しない場合はfalseを返す。
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, apperr.Persistence("参加者の確認", err)
	}
	return ok, nil
}

// MarkConversationRead は他の参加者が送信した未読メッセージを既読にし、会話ルームへ messages_read を配信する。
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	var updated int64
	err := s.store.WithinTx(ctx, func(q *store.Queries) error {
		if err := requireParticipant(ctx, q, conversationID, userID); err != nil {
			return err
		}
		var err error
		updated, err = q.MarkMessagesRead(ctx, conversationID, userID, s.now())
		return err
	})
	if err != nil {
		return 0, apperr.Persistence("メッセージの既読処理", err)
	}

	if updated > 0 {
		room := realtime.ConversationRoom(conversationID)
		if _, err := s.publisher.Publish(ctx, room, event.KindMessagesRead, event.MessagesReadData{
			ConversationID: conversationID,
			ReaderID:       userID,
			Count:          updated,
		}); err != nil {
			s.logger.Warn().Err(err).Str("room", room).Msg("既読イベントの配信に失敗")
		}
	}
	return updated, nil
}

// requireParticipant は会話が存在し、ユーザーが参加者であることを確認する。
// 参加者でない場合も会話の存在を明かさないよう apperr.ErrNotFound を返す。
func requireParticipant(ctx context.Context, q *store.Queries, conversationID, userID string) error {
	if _, err := q.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	ok, err := q.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("会話 %s", conversationID)
	}
	return nil
}

func conversationFromRow(row store.Conversation, participants []string) Conversation {
	return Conversation{
		ID:             row.ID,
		ParticipantIDs: participants,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func messageFromRow(row store.Message) Message {
	m := Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Content:        row.Content,
		CreatedAt:      row.CreatedAt.UTC(),
	}
	if row.ReadAt.Valid {
		m.ReadAt = lo.ToPtr(row.ReadAt.Time.UTC())
	}
	return m
}
