// Package store はSQLiteを使用した永続化層を提供する。
//
// 通知・会話・会話参加者・メッセージの4テーブルを扱う。スキーマは
// migrations/ 配下のSQLファイルを pkg/migration で適用する。
// Queries はsqlcが生成するコードと同じ形で書かれており、*sql.DB と *sql.Tx の
// どちらに対しても実行できる。サービス層は Store.WithinTx で1操作を1トランザクションにまとめる。
package store
