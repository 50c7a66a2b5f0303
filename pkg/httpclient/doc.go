// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// プロフィールサービスからの表示名の取得など、本サービスが他のサービスの
// APIを呼び出す際の通信パターンを統一する。
package httpclient
