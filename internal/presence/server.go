package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler はオンライン状態参照APIのHTTPハンドラ。
type Handler struct {
	recorder Recorder
	logger   zerolog.Logger
}

// NewHandler はオンライン状態参照APIのハンドラを生成する。
func NewHandler(recorder Recorder, logger zerolog.Logger) *Handler {
	return &Handler{
		recorder: recorder,
		logger:   logger.With().Str("component", "presence_http").Logger(),
	}
}

// RegisterRoutes はJWT認証済みのルーターグループにAPIを登録する。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/presence/:user_id", h.handleGet())
}

// handleGet は指定ユーザーのオンライン状態を返すハンドラを返す。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		online, err := h.recorder.IsOnline(c.Request.Context(), userID)
		if err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Msg("オンライン状態の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "オンライン状態の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": online})
	}
}
