package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/nao1215/socialhub/internal/messaging"
	"github.com/nao1215/socialhub/internal/presence"
	"github.com/nao1215/socialhub/internal/realtime"
	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
	"github.com/nao1215/socialhub/pkg/middleware"
)

const (
	// maxFrameSize はクライアントから受け付ける1フレームの最大サイズ。
	maxFrameSize = 64 * 1024
	// defaultWriteTimeout は1フレームの書き込み期限。
	defaultWriteTimeout = 10 * time.Second
	// defaultPingInterval はサーバーからpingを送る間隔。
	defaultPingInterval = 30 * time.Second
	// presenceTimeout は切断時のオンライン状態更新の期限。
	presenceTimeout = 5 * time.Second
	// devTokenTTL は開発用トークンの有効期間。
	devTokenTTL = 24 * time.Hour
)

// Messenger はゲートウェイが中継するメッセージング操作。
type Messenger interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (*messaging.Message, error)
	SetTyping(ctx context.Context, conversationID, userID string) error
}

// Options はゲートウェイの設定。
type Options struct {
	// JWTSecret はトークン検証用の秘密鍵。
	JWTSecret string
	// AllowedOrigins はWebSocket接続を許可するOriginのリスト。"*" はすべて許可する。
	AllowedOrigins []string
	// WriteTimeout は1フレームの書き込み期限。
	WriteTimeout time.Duration
	// PingInterval はサーバーからpingを送る間隔。pongがその2倍の時間届かなければ切断する。
	PingInterval time.Duration
	// DevTokens が true の場合、開発用トークン発行エンドポイントを有効にする。
	DevTokens bool
}

// Handler はWebSocketゲートウェイ。
type Handler struct {
	registry  *realtime.Registry
	messenger Messenger
	presence  presence.Recorder
	opts      Options
	upgrader  websocket.Upgrader
	// conns は接続中のWebSocket。Shutdownで一括して閉じる。
	conns  sync.Map
	logger zerolog.Logger
}

// NewHandler はWebSocketゲートウェイを生成する。
func NewHandler(registry *realtime.Registry, messenger Messenger, recorder presence.Recorder, opts Options, logger zerolog.Logger) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	h := &Handler{
		registry:  registry,
		messenger: messenger,
		presence:  recorder,
		opts:      opts,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes はWebSocketエンドポイントを登録する。認証はエンドポイント内で行う。
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/ws", h.handleConnect())
	if h.opts.DevTokens {
		// 開発用トークン発行
		router.POST("/auth/dev-token", h.handleDevToken())
	}
}

// Shutdown は接続中のWebSocketをすべて閉じる。各接続の切断処理は読み込みループの終了時に行われる。
func (h *Handler) Shutdown() {
	h.conns.Range(func(_, value any) bool {
		conn := value.(*websocket.Conn)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return true
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(h.opts.AllowedOrigins, "*") || lo.Contains(h.opts.AllowedOrigins, origin)
}

// handleConnect はトークンを検証してWebSocketへアップグレードするハンドラを返す。
func (h *Handler) handleConnect() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := middleware.TokenFromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		claims, err := middleware.ParseToken(h.opts.JWTSecret, tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade がエラーレスポンスを書き込み済み
			h.logger.Warn().Err(err).Str("user_id", claims.UserID).Msg("WebSocketへのアップグレードに失敗しました")
			return
		}

		h.serve(c.Request.Context(), conn, claims.UserID)
	}
}

// devTokenRequest は開発用トークン発行のリクエストボディ。
type devTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 本番環境では無効化すべき。
func (h *Handler) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_idは必須です"})
			return
		}

		token, err := middleware.GenerateJWT(h.opts.JWTSecret, req.UserID, req.Name, devTokenTTL)
		if err != nil {
			h.logger.Error().Err(err).Msg("JWT生成エラー")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": req.UserID,
		})
	}
}

// serve は1つの接続を登録し、切断されるまでクライアントのフレームを処理する。
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, userID string) {
	connID := uuid.New().String()
	logger := h.logger.With().Str("connection_id", connID).Str("user_id", userID).Logger()
	sender := newWSSender(conn, h.opts.WriteTimeout)

	if err := h.registry.Register(connID, userID, sender); err != nil {
		logger.Error().Err(err).Msg("接続の登録に失敗しました")
		_ = conn.Close()
		return
	}
	h.conns.Store(connID, conn)
	defer h.disconnect(ctx, conn, connID, userID, logger)

	if err := h.registry.Join(connID, realtime.UserRoom(userID)); err != nil {
		logger.Error().Err(err).Msg("ユーザールームへの参加に失敗しました")
		return
	}
	if err := h.presence.Online(ctx, userID, connID); err != nil {
		logger.Warn().Err(err).Msg("オンライン状態の記録に失敗しました")
	}
	if err := h.reply(sender, event.KindConnected, "", event.ConnectedData{ConnectionID: connID, UserID: userID}); err != nil {
		logger.Warn().Err(err).Msg("connectedイベントの送信に失敗しました")
		return
	}
	logger.Info().Msg("WebSocket接続を確立しました")

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(sender, done, logger)

	pongWait := 2 * h.opts.PingInterval
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("WebSocket接続が異常終了しました")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(ctx, connID, userID, sender, raw, logger)
	}
}

// keepAlive はdoneが閉じられるまで定期的にpingを送る。
func (h *Handler) keepAlive(sender *wsSender, done <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sender.ping(); err != nil {
				logger.Debug().Err(err).Msg("pingの送信に失敗しました")
				return
			}
		}
	}
}

// disconnect は接続をRegistryから取り除き、オンライン状態を更新する。
func (h *Handler) disconnect(ctx context.Context, conn *websocket.Conn, connID, userID string, logger zerolog.Logger) {
	h.conns.Delete(connID)
	_ = conn.Close()
	if !h.registry.OnDisconnect(connID) {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	if err := h.presence.Offline(pctx, userID, connID); err != nil {
		logger.Warn().Err(err).Msg("オフライン状態の記録に失敗しました")
	}
	logger.Info().Msg("WebSocket接続を切断しました")
}

// dispatch はクライアントから受信した1フレームを処理する。
func (h *Handler) dispatch(ctx context.Context, connID, userID string, sender *wsSender, raw []byte, logger zerolog.Logger) {
	msg, err := event.ParseClientMessage(raw)
	if err != nil {
		h.replyError(sender, logger, "不正なメッセージ形式です")
		return
	}

	switch msg.Type {
	case event.ClientJoinConversation:
		h.joinConversation(ctx, connID, userID, sender, msg.ConversationID, logger)

	case event.ClientLeaveConversation:
		if msg.ConversationID == "" {
			h.replyError(sender, logger, "conversation_idは必須です")
			return
		}
		room := realtime.ConversationRoom(msg.ConversationID)
		h.registry.Leave(connID, room)
		h.replyOrLog(sender, logger, event.KindLeft, event.RoomData{Room: room})

	case event.ClientTyping, event.ClientTypingStart:
		if err := h.messenger.SetTyping(ctx, msg.ConversationID, userID); err != nil {
			h.replyFailure(sender, logger, err, "入力中シグナルの配信に失敗しました")
		}

	case event.ClientSendMessage:
		if _, err := h.messenger.SendMessage(ctx, msg.ConversationID, userID, msg.Content); err != nil {
			h.replyFailure(sender, logger, err, "メッセージの送信に失敗しました")
		}

	case event.ClientPing:
		h.replyOrLog(sender, logger, event.KindPong, struct{}{})

	default:
		h.replyError(sender, logger, "未対応のメッセージ種別です: "+string(msg.Type))
	}
}

// joinConversation は参加者である場合に限り接続を会話ルームへ参加させる。
func (h *Handler) joinConversation(ctx context.Context, connID, userID string, sender *wsSender, conversationID string, logger zerolog.Logger) {
	if conversationID == "" {
		h.replyError(sender, logger, "conversation_idは必須です")
		return
	}

	member, err := h.messenger.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		h.replyFailure(sender, logger, err, "会話への参加に失敗しました")
		return
	}
	if !member {
		h.replyError(sender, logger, "会話が見つかりません")
		return
	}

	room := realtime.ConversationRoom(conversationID)
	if err := h.registry.Join(connID, room); err != nil {
		h.replyFailure(sender, logger, err, "会話への参加に失敗しました")
		return
	}
	h.replyOrLog(sender, logger, event.KindJoined, event.RoomData{Room: room})
}

func (h *Handler) reply(sender *wsSender, kind event.Kind, room string, data any) error {
	env, err := event.New(room, kind, data)
	if err != nil {
		return err
	}
	return sender.Send(env)
}

func (h *Handler) replyOrLog(sender *wsSender, logger zerolog.Logger, kind event.Kind, data any) {
	if err := h.reply(sender, kind, "", data); err != nil {
		logger.Debug().Err(err).Str("type", string(kind)).Msg("応答の送信に失敗しました")
	}
}

func (h *Handler) replyError(sender *wsSender, logger zerolog.Logger, message string) {
	h.replyOrLog(sender, logger, event.KindError, event.ErrorData{Message: message})
}

// replyFailure はクライアント起因のエラーはそのまま、それ以外は汎用メッセージで返す。
func (h *Handler) replyFailure(sender *wsSender, logger zerolog.Logger, err error, message string) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError && !errors.Is(err, apperr.ErrBusClosed) {
		logger.Error().Err(err).Msg(message)
		h.replyError(sender, logger, message)
		return
	}
	h.replyError(sender, logger, err.Error())
}
