// Package notification は永続的な通知の作成・既読管理とリアルタイム配信を提供する。
//
// 通知は必ず永続化に成功してから受信者の個人ルーム（user:<id>）へ配信する。
// 配信に失敗しても通知は残り、クライアントは一覧APIで後から取得できる。
//
// 主なエンドポイント:
//   - GET  /api/v1/notifications: 通知一覧（新しい順）
//   - GET  /api/v1/notifications/unread/count: 未読通知数
//   - PUT  /api/v1/notifications/read-all: 全通知を既読にする
//   - POST /api/v1/internal/notifications: 他サービスからの通知作成
package notification
