package realtime

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom はユーザーの個人ルームIDを返す。
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// ConversationRoom は会話ルームIDを返す。
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}
