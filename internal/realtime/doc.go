// Package realtime はWebSocket接続のルーム管理とイベント配信を提供する。
//
// Registry は接続・ルーム・ユーザーの対応を保持する唯一の情報源で、
// 各ユーザーの個人ルーム（user:<id>）と会話ルーム（conversation:<id>）を扱う。
// Bus はルームへのpublishをその時点のメンバー全員へ同期的に配信する。
// ルームは最初のJoinで作成され、メンバーがいなくなると破棄される。状態はプロセス内のみで永続化しない。
package realtime
