// Package apperr はサービス全体で共通して使用するエラー分類を提供する。
//
// 各操作はここで定義するセンチネルエラーを %w でラップして返す。
// 呼び出し側は errors.Is で分類を判定し、HTTPStatus でレスポンスコードに変換する。
package apperr
