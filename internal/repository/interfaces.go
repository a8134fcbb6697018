// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// UsernameExists はユーザー名が使用済みかどうかを返す。
	UsernameExists(ctx context.Context, username string) (bool, error)

	// Create はユーザーを作成する。
	// ユーザー名またはメールアドレスが重複する場合はErrUsernameTaken / ErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Update はユーザーのプロフィール項目を更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 科目・学習記録・目標・identity・リフレッシュトークンはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// ListProvidersByUserID はユーザーが紐付けているIdPの一覧を返す。
	ListProvidersByUserID(ctx context.Context, userID string) ([]string, error)
}

// RefreshTokenRepository は発行済みリフレッシュトークンの台帳。
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindByID は有効期限内のトークンを取得する。失効済み・期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RefreshToken, error)

	// DeleteByID はトークンを失効させる。削除した行があった場合にtrueを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteExpired は期限切れのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SubjectRepository は科目の永続化インターフェース。
// すべての操作は所有ユーザーで絞り込み、他ユーザーの科目は存在しないものとして扱う。
type SubjectRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Subject, error)

	// FindByID は指定ユーザーが所有する科目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Subject, error)

	Create(ctx context.Context, subject *model.Subject) error

	// Update は科目を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, subject *model.Subject) (bool, error)

	// Delete は科目を削除する。その科目の学習記録はCASCADE削除される。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// StudySessionRepository は学習セッションの永続化インターフェース。
type StudySessionRepository interface {
	// CreateActive は進行中のセッションを作成する。
	// 既に進行中のセッションがある場合はErrActiveSessionExistsを返す。
	CreateActive(ctx context.Context, session *model.StudySession) error

	// FindActiveByUserID は進行中のセッションを取得する。なければnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.StudySessionDetail, error)

	// FindByID は指定ユーザーが所有するセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.StudySessionDetail, error)

	// ListByUserID はセッションを開始時刻の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.StudySessionDetail, error)

	// ListCompletedSince はsince以降に開始した終了済みセッションを開始時刻の降順で返す。
	// sinceがゼロ値の場合は全期間を対象にする。
	ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]*model.StudySessionDetail, error)

	// CountCompleted は終了済みセッションの件数を返す。
	CountCompleted(ctx context.Context, userID string) (int, error)

	// UpdateNotes はメモを更新する。対象が存在しない場合はfalseを返す。
	UpdateNotes(ctx context.Context, userID, id, notes string, updatedAt time.Time) (bool, error)

	// Delete はセッションを削除する。加算済みの貯金額は戻さない。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// GoalRepository は貯金目標の永続化インターフェース。
type GoalRepository interface {
	// ListByUserID は目標を作成日時の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.SavingsGoal, error)

	// FindByID は指定ユーザーが所有する目標を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.SavingsGoal, error)

	Create(ctx context.Context, goal *model.SavingsGoal) error

	// Update は目標を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, goal *model.SavingsGoal) (bool, error)

	Delete(ctx context.Context, userID, id string) (bool, error)
}

// LedgerStore は学習終了と貯金加算を1トランザクションで行うためのストア。
type LedgerStore interface {
	// RunInTx はユーザー単位のロックを取得したトランザクション内でfnを実行する。
	// fnがエラーを返した場合はロールバックする。
	RunInTx(ctx context.Context, userID string, fn func(tx LedgerTx) error) error
}

// LedgerTx はLedgerStore.RunInTx内で使える操作。
// 読み取りはすべて行ロック（FOR UPDATE）付きで行う。
type LedgerTx interface {
	// FindSessionForUpdate は指定ユーザーのセッションを科目情報付きで取得する。見つからない場合はnilを返す。
	FindSessionForUpdate(ctx context.Context, userID, id string) (*model.StudySessionDetail, error)

	// CompleteSession はセッションの終了時刻と学習時間を保存する。
	CompleteSession(ctx context.Context, session *model.StudySession) error

	// FirstUnachievedGoalForUpdate は未達成の目標のうち最も古いものを返す。なければnilを返す。
	FirstUnachievedGoalForUpdate(ctx context.Context, userID string) (*model.SavingsGoal, error)

	// SaveGoalProgress は目標の現在額と達成フラグを保存する。
	SaveGoalProgress(ctx context.Context, goal *model.SavingsGoal) error
}

// dbtx は*sql.DBと*sql.Txに共通するクエリ操作。
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner は*sql.Rowと*sql.Rowsに共通するScan。
type rowScanner interface {
	Scan(dest ...any) error
}
