// Package gateway はWebSocket接続の受け口を提供する。
//
// JWTで認証した接続をRegistryに登録し、ユーザールームへ自動参加させる。
// クライアントからのフレーム（会話ルームへの参加・退出、入力中シグナル、
// メッセージ送信、ping）をメッセージングサービスへ中継する。
// 切断時は必ず1回だけRegistryから接続を取り除き、オンライン状態を更新する。
package gateway
