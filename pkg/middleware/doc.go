// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTの検証（HTTPヘッダーとWebSocket接続時のクエリパラメータの両方）、
// zerologによるリクエストログ、パニックリカバリ、CORS設定を含む。
package middleware
