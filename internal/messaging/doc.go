// Package messaging は会話とチャットメッセージを扱う。
//
// メッセージは永続化に成功してから会話ルーム（conversation:<id>）へ new_message として配信し、
// その後に送信者以外の参加者へ永続的な通知を作成する。入力中の表示（user_typing）は永続化しない。
// 参加者は会話の作成時に確定し、以降は変更しない。
package messaging
