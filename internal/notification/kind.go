package notification

import "github.com/samber/lo"

// Kind は通知の種類を表す。定義済みの値以外は受け付けない。
type Kind string

const (
	// KindNewMessage は会話に新しいメッセージが届いたことを表す。
	KindNewMessage Kind = "new_message"
	// KindEventInvitation はイベントに招待されたことを表す。
	KindEventInvitation Kind = "event_invitation"
	// KindGroupInvitation はグループに招待されたことを表す。
	KindGroupInvitation Kind = "group_invitation"
	// KindPostLike は投稿に「いいね」が付いたことを表す。
	KindPostLike Kind = "post_like"
	// KindPostComment は投稿にコメントが付いたことを表す。
	KindPostComment Kind = "post_comment"
	// KindNewFollower は新しいフォロワーが付いたことを表す。
	KindNewFollower Kind = "new_follower"
)

// Kinds は定義済みの通知の種類をすべて返す。
func Kinds() []Kind {
	return []Kind{
		KindNewMessage,
		KindEventInvitation,
		KindGroupInvitation,
		KindPostLike,
		KindPostComment,
		KindNewFollower,
	}
}

// Valid は定義済みの種類かどうかを返す。
func (k Kind) Valid() bool {
	return lo.Contains(Kinds(), k)
}

// 参照先エンティティの種類。
const (
	ReferenceMessage = "message"
	ReferenceEvent   = "event"
	ReferenceGroup   = "group"
)
