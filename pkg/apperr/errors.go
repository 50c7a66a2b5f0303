package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation は入力値が不正であることを表す。再試行しても成功しない。
	ErrValidation = errors.New("入力値が不正です")
	// ErrNotFound は参照先のエンティティが存在しないことを表す。
	ErrNotFound = errors.New("対象が見つかりません")
	// ErrForbidden は操作対象の所有者ではないことを表す。
	ErrForbidden = errors.New("操作する権限がありません")
	// ErrUnknownConnection は登録されていない接続に対する操作を表す。プログラミングエラー。
	ErrUnknownConnection = errors.New("未登録の接続です")
	// ErrPersistence は永続化層への書き込み・読み込みに失敗したことを表す。
	ErrPersistence = errors.New("永続化に失敗しました")
	// ErrBusClosed は停止済み、または未起動の配信バスへのpublishを表す。
	ErrBusClosed = errors.New("配信バスが稼働していません")
)

// Validation はErrValidationをラップしたエラーを返す。
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound はErrNotFoundをラップしたエラーを返す。
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Forbidden はErrForbiddenをラップしたエラーを返す。
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Persistence は永続化層のエラーをErrPersistenceでラップする。
// 既に分類済みのエラー（NotFound等）はそのまま返す。
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// HTTPStatus はエラー分類に対応するHTTPステータスコードを返す。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownConnection):
		return http.StatusConflict
	case errors.Is(err, ErrBusClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
