package messaging

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/middleware"
)

// Handler は会話APIのHTTPハンドラ。
type Handler struct {
	// service はメッセージングサービス。
	service *Service
	// logger はハンドラ用のロガー。
	logger zerolog.Logger
}

// NewHandler は会話APIのハンドラを生成する。
func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With().Str("component", "messaging_http").Logger(),
	}
}

// RegisterRoutes はJWT認証済みのルーターグループに会話APIを登録する。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	conversations := api.Group("/conversations")
	{
		conversations.GET("", h.handleListConversations())
		conversations.POST("", h.handleCreateConversation())
		conversations.GET("/:id", h.handleGetConversation())
		// メッセージ履歴取得
		conversations.GET("/:id/messages", h.handleHistory())
		// メッセージ送信
		conversations.POST("/:id/messages", h.handleSendMessage())
		// 入力中の通知
		conversations.POST("/:id/typing", h.handleTyping())
		// 既読
		conversations.POST("/:id/read", h.handleMarkRead())
	}

	// 会話IDをボディで指定するメッセージ送信
	api.POST("/messages", h.handleSendMessage())
}

func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// requireParticipant はパスの会話に認証済みユーザーが参加していることを確認する。
// 参加していない場合は会話の存在を明かさないよう404を返す。
func (h *Handler) requireParticipant(c *gin.Context) (conversationID, userID string, ok bool) {
	userID, ok = requireUser(c)
	if !ok {
		return "", "", false
	}
	conversationID = c.Param("id")

	member, err := h.service.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		h.respondError(c, err, "参加者の確認に失敗しました")
		return "", "", false
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "会話が見つかりません"})
		return "", "", false
	}
	return conversationID, userID, true
}

// handleListConversations は認証済みユーザーの会話一覧を返すハンドラ。
func (h *Handler) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		conversations, err := h.service.ListConversations(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "会話一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, conversations)
	}
}

// createConversationRequest は会話作成リクエストのJSON構造。
type createConversationRequest struct {
	// ParticipantIDs は作成者以外の参加者のユーザーID。
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
}

// handleCreateConversation は会話を作成するハンドラ。
func (h *Handler) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		conv, err := h.service.CreateConversation(c.Request.Context(), userID, req.ParticipantIDs)
		if err != nil {
			h.respondError(c, err, "会話の作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

// handleGetConversation は会話を返すハンドラ。
func (h *Handler) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, _, ok := h.requireParticipant(c)
		if !ok {
			return
		}

		conv, err := h.service.GetConversation(c.Request.Context(), conversationID)
		if err != nil {
			h.respondError(c, err, "会話の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// handleHistory は会話のメッセージを古い順に返すハンドラ。
func (h *Handler) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, _, ok := h.requireParticipant(c)
		if !ok {
			return
		}

		messages, err := h.service.History(c.Request.Context(), conversationID)
		if err != nil {
			h.respondError(c, err, "メッセージ履歴の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, messages)
	}
}

// sendMessageRequest はメッセージ送信リクエストのJSON構造。
type sendMessageRequest struct {
	// ConversationID は送信先の会話ID。パスで指定した場合は無視する。
	ConversationID string `json:"conversation_id"`
	// Content はメッセージ本文。
	Content string `json:"content"`
}

// handleSendMessage はメッセージを送信するハンドラ。
func (h *Handler) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}
		conversationID := c.Param("id")
		if conversationID == "" {
			conversationID = req.ConversationID
		}
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_idが必要です"})
			return
		}

		msg, err := h.service.SendMessage(c.Request.Context(), conversationID, userID, req.Content)
		if err != nil {
			h.respondError(c, err, "メッセージの送信に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

// handleTyping は入力中であることを会話ルームへ配信するハンドラ。
func (h *Handler) handleTyping() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		if err := h.service.SetTyping(c.Request.Context(), c.Param("id"), userID); err != nil {
			h.respondError(c, err, "入力中の通知に失敗しました")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleMarkRead は会話のメッセージを既読にするハンドラ。
func (h *Handler) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		updated, err := h.service.MarkConversationRead(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			h.respondError(c, err, "メッセージの既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "updated": updated})
	}
}
