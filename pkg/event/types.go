package event

import (
	"encoding/json"
	"time"
)

// Kind はサーバーから配信するイベントの種類を表す。
type Kind string

const (
	// KindConnected は接続確立直後に送信するイベント。
	KindConnected Kind = "connected"
	// KindNewNotification は新しい通知が作成されたことを表す。
	KindNewNotification Kind = "new_notification"
	// KindUnreadCount は未読通知数が変化したことを表す。
	KindUnreadCount Kind = "unread_count"
	// KindNewMessage は会話に新しいメッセージが投稿されたことを表す。
	KindNewMessage Kind = "new_message"
	// KindUserTyping は会話の参加者が入力中であることを表す。
	KindUserTyping Kind = "user_typing"
	// KindMessagesRead は会話のメッセージが既読になったことを表す。
	KindMessagesRead Kind = "messages_read"
	// KindJoined はルームへの参加が完了したことを表す。
	KindJoined Kind = "joined"
	// KindLeft はルームからの退出が完了したことを表す。
	KindLeft Kind = "left"
	// KindPong はクライアントのpingに対する応答。
	KindPong Kind = "pong"
	// KindError はクライアントの要求が処理できなかったことを表す。
	KindError Kind = "error"
)

// Envelope はWebSocketで配信する1フレーム分のイベント。
type Envelope struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Kind はイベントの種類。クライアントはこの値でハンドラを切り替える。
	Kind Kind `json:"type"`
	// Room は配信先のルームID。個別送信の場合は空。
	Room string `json:"room,omitempty"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
	// CreatedAt はイベントが生成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// ClientType はクライアントから送信されるフレームの種類を表す。
type ClientType string

const (
	// ClientJoinConversation は会話ルームへの参加要求。
	ClientJoinConversation ClientType = "join_conversation"
	// ClientLeaveConversation は会話ルームからの退出要求。
	ClientLeaveConversation ClientType = "leave_conversation"
	// ClientTyping は入力中シグナル。
	ClientTyping ClientType = "typing"
	// ClientTypingStart は入力中シグナルの別名。フロントエンド互換のため受け付ける。
	ClientTypingStart ClientType = "typing_start"
	// ClientSendMessage はWebSocket経由のメッセージ送信要求。
	ClientSendMessage ClientType = "send_message"
	// ClientPing は疎通確認。
	ClientPing ClientType = "ping"
)

// ClientMessage はクライアントから受信する1フレーム分の要求。
type ClientMessage struct {
	// Type は要求の種類。
	Type ClientType `json:"type"`
	// ConversationID は対象の会話ID。
	ConversationID string `json:"conversation_id,omitempty"`
	// Content は送信するメッセージ本文。send_messageでのみ使用する。
	Content string `json:"content,omitempty"`
}

// TypingData はuser_typingイベントのデータ。
type TypingData struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// RoomData はjoined/leftイベントのデータ。
type RoomData struct {
	Room string `json:"room"`
}

// ConnectedData はconnectedイベントのデータ。
type ConnectedData struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// UnreadCountData はunread_countイベントのデータ。
type UnreadCountData struct {
	Count int64 `json:"count"`
}

// MessagesReadData はmessages_readイベントのデータ。
type MessagesReadData struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	Count          int64  `json:"count"`
}

// ErrorData はerrorイベントのデータ。
type ErrorData struct {
	Message string `json:"message"`
}
