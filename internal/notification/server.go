package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/middleware"
)

// Handler は通知APIのHTTPハンドラ。
type Handler struct {
	// service は通知サービス。
	service *Service
	// maxLimit は一覧取得で指定できる件数の上限。
	maxLimit int
	// logger はハンドラ用のロガー。
	logger zerolog.Logger
}

// NewHandler は通知APIのハンドラを生成する。
func NewHandler(service *Service, maxLimit int, logger zerolog.Logger) *Handler {
	if maxLimit <= 0 {
		maxLimit = DefaultListLimit
	}
	return &Handler{
		service:  service,
		maxLimit: maxLimit,
		logger:   logger.With().Str("component", "notification_http").Logger(),
	}
}

// RegisterRoutes はJWT認証済みのルーターグループに通知APIを登録する。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	notifications := api.Group("/notifications")
	{
		// 通知一覧取得
		notifications.GET("", h.handleList())
		// 未読通知一覧取得
		notifications.GET("/unread", h.handleListUnread())
		// 未読通知数取得
		notifications.GET("/unread/count", h.handleUnreadCount())
		// 全通知を既読にする
		notifications.PUT("/read-all", h.handleMarkAllRead())
		notifications.PATCH("/read-all", h.handleMarkAllRead())
		notifications.POST("/read-all", h.handleMarkAllRead())
		notifications.POST("/mark-read", h.handleMarkAllRead())
		// 通知取得
		notifications.GET("/:id", h.handleGet())
		// 通知を既読にする
		notifications.PUT("/:id/read", h.handleMarkRead())
		notifications.PATCH("/:id/read", h.handleMarkRead())
	}

	// 通知作成（内部API - 投稿・イベント・グループの各サービスから呼び出される）
	internal := api.Group("/internal")
	{
		internal.POST("/notifications", h.handleCreate())
		internal.POST("/events/:event_id/invitations", h.handleEventInvitation())
		internal.POST("/groups/:group_id/invitations", h.handleGroupInvitation())
	}
}

// respondError はエラー分類に応じたステータスコードでエラーを返す。
func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireUser は認証済みユーザーIDを返す。取得できない場合は401を返してfalseを返す。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// handleList は認証済みユーザーの通知一覧を新しい順に返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		limit := h.maxLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは正の整数で指定してください"})
				return
			}
			limit = min(n, h.maxLimit)
		}

		notifications, err := h.service.List(c.Request.Context(), userID, limit)
		if err != nil {
			h.respondError(c, err, "通知一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (h *Handler) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		notifications, err := h.service.ListUnread(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "未読通知一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

// handleUnreadCount は未読通知数を返すハンドラ。
func (h *Handler) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		count, err := h.service.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "未読通知数の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// handleGet は通知を1件返すハンドラ。他のユーザーの通知は403を返す。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		n, err := h.service.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			h.respondError(c, err, "通知の取得に失敗しました")
			return
		}
		if n.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を参照する権限がありません"})
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
func (h *Handler) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		n, err := h.service.MarkRead(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			h.respondError(c, err, "通知の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
func (h *Handler) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		updated, err := h.service.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			h.respondError(c, err, "全通知の既読処理に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "updated": updated})
	}
}

// handleCreate は通知を作成する内部APIのハンドラ。
func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		n, err := h.service.CreateNotification(c.Request.Context(), req)
		if err != nil {
			h.respondError(c, err, "通知の作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, n)
	}
}

// invitationRequest は招待通知の作成リクエストのJSON構造。
type invitationRequest struct {
	// InviteeID は招待されたユーザーのID。
	InviteeID string `json:"invitee_id" binding:"required"`
	// Title はイベントのタイトルまたはグループ名。
	Title string `json:"title" binding:"required"`
}

// handleEventInvitation はイベント招待通知を作成する内部APIのハンドラ。
func (h *Handler) handleEventInvitation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req invitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		n, err := h.service.NotifyEventInvitation(c.Request.Context(),
			EventRef{ID: c.Param("event_id"), Title: req.Title}, req.InviteeID)
		if err != nil {
			h.respondError(c, err, "招待通知の作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, n)
	}
}

// handleGroupInvitation はグループ招待通知を作成する内部APIのハンドラ。
func (h *Handler) handleGroupInvitation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req invitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		n, err := h.service.NotifyGroupInvitation(c.Request.Context(),
			GroupRef{ID: c.Param("group_id"), Name: req.Title}, req.InviteeID)
		if err != nil {
			h.respondError(c, err, "招待通知の作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, n)
	}
}
