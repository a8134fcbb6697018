// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, study, goal, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken            = "INVALID_TOKEN"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeValidationFailed        = "VALIDATION_FAILED"
	ErrCodePasswordMismatch        = "PASSWORD_MISMATCH"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeUsernameTaken           = "USERNAME_TAKEN"
	ErrCodeEmailTaken              = "EMAIL_TAKEN"
	ErrCodeSubjectNotFound         = "SUBJECT_NOT_FOUND"
	ErrCodeSessionNotFound         = "SESSION_NOT_FOUND"
	ErrCodeActiveSessionExists     = "ACTIVE_SESSION_EXISTS"
	ErrCodeSessionAlreadyCompleted = "SESSION_ALREADY_COMPLETED"
	ErrCodeGoalNotFound            = "GOAL_NOT_FOUND"
	ErrCodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	ErrCodeOAuthNotConfigured      = "OAUTH_NOT_CONFIGURED"
	ErrCodeCSRFValidationFailed    = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証が必要な操作を未認証で呼び出した場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はユーザー名またはパスワードが誤っている場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidTokenError はトークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証に失敗した場合のエラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewPasswordMismatchError は確認用パスワードが一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードが一致しません。",
		Category: "validation",
		Action:   "確認用パスワードを同じ値で入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使用されている場合のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "このユーザー名は既に使用されています。",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewEmailTakenError はメールアドレスが既に登録されている場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを指定するか、ログインしてください。",
	}
}

// NewSubjectNotFoundError は科目が見つからない場合のエラーを生成する。
// 他ユーザーの科目も存在しないものとして扱う。
func NewSubjectNotFoundError(subjectID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubjectNotFound,
		Message:  fmt.Sprintf("指定された科目が見つかりません: %s", subjectID),
		Category: "study",
		Action:   "科目IDを確認してください。",
	}
}

// NewSessionNotFoundError は学習セッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された学習セッションが見つかりません: %s", sessionID),
		Category: "study",
		Action:   "セッションIDを確認してください。",
	}
}

// NewActiveSessionExistsError は進行中のセッションがある状態で開始しようとした場合のエラーを生成する。
func NewActiveSessionExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeActiveSessionExists,
		Message:  "既に進行中の学習セッションがあります。",
		Category: "study",
		Action:   "現在のセッションを終了してから新しいセッションを開始してください。",
	}
}

// NewSessionAlreadyCompletedError は終了済みのセッションを再度終了しようとした場合のエラーを生成する。
func NewSessionAlreadyCompletedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionAlreadyCompleted,
		Message:  "この学習セッションは既に終了しています。",
		Category: "study",
		Action:   "セッション一覧を再読み込みしてください。",
	}
}

// NewGoalNotFoundError は貯金目標が見つからない場合のエラーを生成する。
func NewGoalNotFoundError(goalID string) *APIError {
	return &APIError{
		Code:     ErrCodeGoalNotFound,
		Message:  fmt.Sprintf("指定された貯金目標が見つかりません: %s", goalID),
		Category: "goal",
		Action:   "目標IDを確認してください。",
	}
}

// NewRateLimitExceededError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "retry_after 秒待ってから再度お試しください。",
	}
}

// NewOAuthNotConfiguredError はGoogleログインが無効な環境で呼び出された場合のエラーを生成する。
func NewOAuthNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthNotConfigured,
		Message:  "Googleログインは現在利用できません。",
		Category: "auth",
		Action:   "ユーザー名とパスワードでログインしてください。",
	}
}

// NewCSRFValidationError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidationFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は想定外の障害に対する汎用エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
