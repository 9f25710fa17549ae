// Package identity はアカウント管理とログイン状態の通知を提供する。
//
// Serviceはプロセス全体で共有するアカウント操作を、Authはワークスペースごとの
// ログイン状態とその変更通知を担う。アカウントと認証セッションは
// ドキュメントゲートウェイに保存する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/model"
)

// AccountHook はアカウント作成直後、ログイン状態の通知より前に呼ばれる。
type AccountHook func(ctx context.Context, account *model.Account) error

// Config はServiceの設定。
type Config struct {
	SessionMaxAge time.Duration // 認証セッションの有効期間
	BaseURL       string        // パスワードリセットリンクの組み立てに使用
}

// Service はアカウントと認証セッションに関するビジネスロジックを提供する。
type Service struct {
	store   docstore.Gateway
	hasher  *PasswordHasher
	oauth   OAuthProvider
	tokens  *ResetTokens
	mailer  Mailer
	hooks   []AccountHook
	config  Config
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。oauthがnilの場合、Googleログインは利用できない。
func NewService(
	store docstore.Gateway,
	hasher *PasswordHasher,
	oauth OAuthProvider,
	tokens *ResetTokens,
	mailer Mailer,
	config Config,
) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		oauth:  oauth,
		tokens: tokens,
		mailer: mailer,
		config: config,
		now:    time.Now,
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func (s *Service) WithMetrics(m metrics.MetricsCollector) *Service {
	s.metrics = m
	return s
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnAccountCreated はアカウント作成時のフックを登録する。
func (s *Service) OnAccountCreated(h AccountHook) {
	s.hooks = append(s.hooks, h)
}

// GoogleEnabled はGoogleログインが設定されているかを返す。
func (s *Service) GoogleEnabled() bool {
	return s.oauth != nil
}

// GoogleLoginURL はGoogleの認可画面へのURLを返す。
func (s *Service) GoogleLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.LoginURL(state)
}

// Register はメールアドレスとパスワードでアカウントを作成し、認証セッションを発行する。
func (s *Service) Register(ctx context.Context, email, password string) (*model.Account, *model.AuthSession, error) {
	if err := ValidateCredentials(email, password, true); err != nil {
		return nil, nil, err
	}
	email = strings.TrimSpace(email)

	existing, err := s.findAccount(ctx, "email", email)
	if err != nil {
		return nil, nil, s.failed("register", err)
	}
	if existing != nil {
		return nil, nil, s.failed("register", newError(CodeEmailAlreadyInUse, "The email address is already in use by another account."))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, s.failed("register", newError(CodeWeakPassword, err.Error()))
	}

	account := &model.Account{Email: email, PasswordHash: hash, CreatedAt: s.now()}
	if err := s.createAccount(ctx, account); err != nil {
		return nil, nil, s.failed("register", err)
	}

	authSession, err := s.issueSession(ctx, account.ID)
	if err != nil {
		return nil, nil, s.failed("register", err)
	}

	s.succeeded("register")
	slog.Info("account registered", slog.String("account_id", account.ID))
	return account, authSession, nil
}

// Login はメールアドレスとパスワードで認証し、認証セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Account, *model.AuthSession, error) {
	if err := ValidateCredentials(email, password, false); err != nil {
		return nil, nil, err
	}

	account, err := s.findAccount(ctx, "email", strings.TrimSpace(email))
	if err != nil {
		return nil, nil, s.failed("login", err)
	}
	if account == nil {
		return nil, nil, s.failed("login", newError(CodeUserNotFound, "There is no user record corresponding to this identifier."))
	}

	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, nil, s.failed("login", newError(CodeWrongPassword, "The password is invalid or the user does not have a password."))
		}
		return nil, nil, s.failed("login", err)
	}

	authSession, err := s.issueSession(ctx, account.ID)
	if err != nil {
		return nil, nil, s.failed("login", err)
	}

	s.succeeded("login")
	return account, authSession, nil
}

// CompleteGoogleLogin はGoogleの認可コードを処理し、認証セッションを発行する。
// 未登録のGoogleアカウントは、確認済みのメールアドレスが既存アカウントと一致すれば紐づけ、なければ新規作成する。
// 未確認のメールアドレスが既存アカウントと一致する場合は紐づけずに拒否する。
func (s *Service) CompleteGoogleLogin(ctx context.Context, code string) (*model.Account, *model.AuthSession, error) {
	if s.oauth == nil {
		return nil, nil, s.failed("google", newError(CodeGoogleFailed, "Google sign-in is not configured."))
	}

	info, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Error("google exchange failed", slog.String("error", err.Error()))
		return nil, nil, s.failed("google", newError(CodeGoogleFailed, err.Error()))
	}

	account, err := s.findAccount(ctx, "googleSubject", info.Subject)
	if err != nil {
		return nil, nil, s.failed("google", err)
	}

	if account == nil && info.Email != "" {
		account, err = s.findAccount(ctx, "email", info.Email)
		if err != nil {
			return nil, nil, s.failed("google", err)
		}
		if account != nil {
			if !info.EmailVerified {
				slog.Warn("refused to link google account with unverified email",
					slog.String("account_id", account.ID),
				)
				return nil, nil, s.failed("google", newError(CodeEmailAlreadyInUse, "The email address is already in use by another account and is not verified by Google."))
			}
			if err := s.store.Update(ctx, model.CollectionAccounts, account.ID, map[string]any{"googleSubject": info.Subject}); err != nil {
				return nil, nil, s.failed("google", fmt.Errorf("failed to link google account: %w", err))
			}
			account.GoogleSubject = info.Subject
		}
	}

	if account == nil {
		account = &model.Account{
			Email:         info.Email,
			DisplayName:   info.Name,
			GoogleSubject: info.Subject,
			CreatedAt:     s.now(),
		}
		if err := s.createAccount(ctx, account); err != nil {
			return nil, nil, s.failed("google", err)
		}
		slog.Info("account created from google", slog.String("account_id", account.ID))
	}

	authSession, err := s.issueSession(ctx, account.ID)
	if err != nil {
		return nil, nil, s.failed("google", err)
	}

	s.succeeded("google")
	return account, authSession, nil
}

// Logout は認証セッションを破棄する。
func (s *Service) Logout(ctx context.Context, authSessionID string) error {
	if authSessionID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, model.CollectionAuthSessions, authSessionID); err != nil {
		return s.failed("logout", fmt.Errorf("failed to delete auth session: %w", err))
	}
	s.succeeded("logout")
	return nil
}

// ResolveSession は認証セッションIDからアカウントを取得する。
// セッションが存在しない、期限切れ、またはアカウントが削除済みの場合はnilを返す。
func (s *Service) ResolveSession(ctx context.Context, authSessionID string) (*model.Account, error) {
	if authSessionID == "" {
		return nil, nil
	}

	doc, err := s.store.GetOne(ctx, model.CollectionAuthSessions, authSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find auth session: %w", err)
	}
	if doc == nil {
		return nil, nil
	}

	authSession := model.AuthSessionFromData(doc.ID, doc.Data)
	if !authSession.ExpiresAt.After(s.now()) {
		return nil, nil
	}

	accountDoc, err := s.store.GetOne(ctx, model.CollectionAccounts, authSession.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if accountDoc == nil {
		return nil, nil
	}
	return model.AccountFromData(accountDoc.ID, accountDoc.Data), nil
}

// SendPasswordReset はパスワードリセット用のリンクを送信する。
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	email = strings.TrimSpace(email)

	account, err := s.findAccount(ctx, "email", email)
	if err != nil {
		return s.failed("password_reset", err)
	}
	if account == nil {
		return s.failed("password_reset", newError(CodeUserNotFound, "There is no user record corresponding to this identifier."))
	}

	token, err := s.tokens.Issue(account.ID, account.Email)
	if err != nil {
		return s.failed("password_reset", err)
	}

	link := strings.TrimRight(s.config.BaseURL, "/") + "/password/reset/confirm?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, account.Email, link); err != nil {
		return s.failed("password_reset", fmt.Errorf("failed to send password reset: %w", err))
	}

	s.succeeded("password_reset")
	return nil
}

// ResetPassword はリセット用トークンを検証して新しいパスワードを設定する。
// 設定後、そのアカウントの既存の認証セッションはすべて破棄する。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	accountID, email, err := s.tokens.Verify(token)
	if err != nil {
		return s.failed("password_reset_confirm", newError(CodeInvalidToken, err.Error()))
	}
	if err := ValidateCredentials(email, newPassword, true); err != nil {
		return err
	}

	doc, err := s.store.GetOne(ctx, model.CollectionAccounts, accountID)
	if err != nil {
		return s.failed("password_reset_confirm", fmt.Errorf("failed to find account: %w", err))
	}
	if doc == nil || model.AccountFromData(doc.ID, doc.Data).Email != email {
		return s.failed("password_reset_confirm", newError(CodeInvalidToken, "The account for this reset link no longer matches."))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.failed("password_reset_confirm", newError(CodeWeakPassword, err.Error()))
	}
	if err := s.store.Update(ctx, model.CollectionAccounts, accountID, map[string]any{"passwordHash": hash}); err != nil {
		return s.failed("password_reset_confirm", fmt.Errorf("failed to update password: %w", err))
	}

	sessions, err := s.store.GetMany(ctx, model.CollectionAuthSessions, []docstore.Condition{
		docstore.Where("accountId", docstore.OpEqual, accountID),
	}, nil)
	if err != nil {
		return s.failed("password_reset_confirm", fmt.Errorf("failed to list auth sessions: %w", err))
	}
	for _, d := range sessions {
		if err := s.store.Delete(ctx, model.CollectionAuthSessions, d.ID); err != nil {
			return s.failed("password_reset_confirm", fmt.Errorf("failed to revoke auth session: %w", err))
		}
	}

	s.succeeded("password_reset_confirm")
	return nil
}

// PurgeExpiredSessions は期限切れの認証セッションを削除し、削除件数を返す。
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.store.GetMany(ctx, model.CollectionAuthSessions, []docstore.Condition{
		docstore.Where("expiresAt", docstore.OpLessEqual, s.now()),
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired auth sessions: %w", err)
	}

	deleted := 0
	for _, d := range expired {
		if err := s.store.Delete(ctx, model.CollectionAuthSessions, d.ID); err != nil {
			return deleted, fmt.Errorf("failed to delete auth session %s: %w", d.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *Service) findAccount(ctx context.Context, field, value string) (*model.Account, error) {
	docs, err := s.store.GetMany(ctx, model.CollectionAccounts, []docstore.Condition{
		docstore.Where(field, docstore.OpEqual, value),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return model.AccountFromData(docs[0].ID, docs[0].Data), nil
}

// createAccount はアカウントを保存してフックを実行する。
// フックが失敗した場合はアカウントを削除して元に戻す。
func (s *Service) createAccount(ctx context.Context, account *model.Account) error {
	id, err := s.store.Create(ctx, model.CollectionAccounts, account.Data())
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	account.ID = id

	for _, hook := range s.hooks {
		if err := hook(ctx, account); err != nil {
			if delErr := s.store.Delete(ctx, model.CollectionAccounts, id); delErr != nil {
				slog.Error("failed to roll back account",
					slog.String("account_id", id),
					slog.String("error", delErr.Error()),
				)
			}
			return fmt.Errorf("failed to provision account: %w", err)
		}
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, accountID string) (*model.AuthSession, error) {
	authSession := &model.AuthSession{
		AccountID: accountID,
		ExpiresAt: s.now().Add(s.config.SessionMaxAge),
	}
	id, err := s.store.Create(ctx, model.CollectionAuthSessions, authSession.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}
	authSession.ID = id
	return authSession, nil
}

func (s *Service) failed(event string, err error) error {
	if s.metrics != nil {
		s.metrics.RecordIdentityEvent(event, true)
	}
	return err
}

func (s *Service) succeeded(event string) {
	if s.metrics != nil {
		s.metrics.RecordIdentityEvent(event, false)
	}
}
