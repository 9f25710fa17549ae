package identity

import (
	"context"
	"sync"

	"github.com/hitoshi/postboard/internal/model"
)

// Auth はワークスペースごとのログイン状態を保持し、変更を購読者へ通知する。
// 通知は状態を更新したあと、呼び出し元のgoroutineで同期的に行う。
type Auth struct {
	svc *Service

	mu            sync.RWMutex
	account       *model.Account
	authSessionID string

	cbMu      sync.Mutex
	callbacks []func(ctx context.Context, s *model.Session)
}

// NewAuth はログアウト状態のAuthを生成する。
func (s *Service) NewAuth() *Auth {
	return &Auth{svc: s}
}

// OnIdentityChange はログイン状態の変更通知を購読する。
func (a *Auth) OnIdentityChange(callback func(ctx context.Context, s *model.Session)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.callbacks = append(a.callbacks, callback)
}

// CurrentIdentity は現在のログイン中のアイデンティティを返す。未ログインならnil。
func (a *Auth) CurrentIdentity() *model.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.account == nil {
		return nil
	}
	return a.account.Session()
}

// AuthSessionID はCookieに保存する認証セッションIDを返す。
func (a *Auth) AuthSessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authSessionID
}

// Register はアカウントを作成してログインする。
func (a *Auth) Register(ctx context.Context, email, password string) error {
	account, authSession, err := a.svc.Register(ctx, email, password)
	if err != nil {
		return err
	}
	a.signIn(ctx, account, authSession.ID)
	return nil
}

// Login はメールアドレスとパスワードでログインする。
func (a *Auth) Login(ctx context.Context, email, password string) error {
	account, authSession, err := a.svc.Login(ctx, email, password)
	if err != nil {
		return err
	}
	a.signIn(ctx, account, authSession.ID)
	return nil
}

// LoginWithGoogle はGoogleの認可コードでログインする。
func (a *Auth) LoginWithGoogle(ctx context.Context, code string) error {
	account, authSession, err := a.svc.CompleteGoogleLogin(ctx, code)
	if err != nil {
		return err
	}
	a.signIn(ctx, account, authSession.ID)
	return nil
}

// Logout は認証セッションを破棄してログアウトする。
// 破棄に失敗した場合はログイン状態を変更しない。未ログインの場合は何もしない。
func (a *Auth) Logout(ctx context.Context) error {
	a.mu.RLock()
	id := a.authSessionID
	signedIn := a.account != nil
	a.mu.RUnlock()

	if !signedIn {
		return nil
	}
	if err := a.svc.Logout(ctx, id); err != nil {
		return err
	}
	a.signOut(ctx, id)
	return nil
}

// SendPasswordReset はパスワードリセット用のリンクを送信する。
func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	return a.svc.SendPasswordReset(ctx, email)
}

// Restore はCookieの認証セッションIDからログイン状態を復元する。
// 結果にかかわらず初期状態として必ず1回通知する。
func (a *Auth) Restore(ctx context.Context, authSessionID string) error {
	account, err := a.svc.ResolveSession(ctx, authSessionID)
	if err != nil || account == nil {
		a.notify(ctx, nil)
		return err
	}
	a.signIn(ctx, account, authSessionID)
	return nil
}

// Revalidate はCookieの認証セッションIDと現在のログイン状態を突き合わせる。
// 認証セッションが期限切れか破棄済みならログアウト状態を通知する。
// Cookieが別の有効な認証セッションを指す場合はそのセッションでログインし直す。
// 状態が変わらない場合は通知しない。バックエンドの失敗時は状態を変更しない。
func (a *Auth) Revalidate(ctx context.Context, authSessionID string) error {
	a.mu.RLock()
	current := a.authSessionID
	signedIn := a.account != nil
	a.mu.RUnlock()

	if !signedIn && authSessionID == "" {
		return nil
	}

	account, err := a.svc.ResolveSession(ctx, authSessionID)
	if err != nil {
		return err
	}
	switch {
	case account == nil:
		if signedIn {
			a.signOut(ctx, current)
		}
	case !signedIn || current != authSessionID:
		a.signIn(ctx, account, authSessionID)
	}
	return nil
}

// signOut はログイン中の認証セッションがexpectedのままであればログアウト状態にして通知する。
func (a *Auth) signOut(ctx context.Context, expected string) {
	a.mu.Lock()
	if a.account == nil || a.authSessionID != expected {
		a.mu.Unlock()
		return
	}
	a.account = nil
	a.authSessionID = ""
	a.mu.Unlock()

	a.notify(ctx, nil)
}

func (a *Auth) signIn(ctx context.Context, account *model.Account, authSessionID string) {
	a.mu.Lock()
	a.account = account
	a.authSessionID = authSessionID
	a.mu.Unlock()

	a.notify(ctx, account.Session())
}

func (a *Auth) notify(ctx context.Context, s *model.Session) {
	a.cbMu.Lock()
	callbacks := make([]func(context.Context, *model.Session), len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.cbMu.Unlock()

	for _, cb := range callbacks {
		cb(ctx, s)
	}
}
