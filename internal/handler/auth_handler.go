package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/postboard/internal/client"
	"github.com/hitoshi/postboard/internal/identity"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/model"
)

const (
	oauthStateCookie = "oauth_state"

	resetSentNotice     = "パスワードリセット用のメールを送信しました。"
	passwordResetNotice = "パスワードを変更しました。新しいパスワードでサインインしてください。"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie        middleware.CookieConfig
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインイン・サインアップ・パスワードリセットとGoogleログインを処理する。
// ログイン状態の変化はワークスペースのAuthを通じてセッションストアに通知される。
type AuthHandler struct {
	identity *identity.Service
	views    *views
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(svc *identity.Service, v *views, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: svc,
		views:    v,
		config:   config,
		logger:   logger,
	}
}

// SignInPage はサインインフォームを表示する。ログイン中はホームへ移動する。
// GET /signin
func (h *AuthHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	h.formPage(w, r, viewSignIn, "サインイン")
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	email := r.PostFormValue("email")
	if err := c.Auth.Login(r.Context(), email, r.PostFormValue("password")); err != nil {
		h.authFailed(w, r, c, viewSignIn, "サインイン", identity.ActionSignIn, email, err)
		return
	}
	h.signedIn(w, r, c)
}

// SignUpPage はアカウント作成フォームを表示する。
// GET /signup
func (h *AuthHandler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.formPage(w, r, viewSignUp, "サインアップ")
}

// SignUp はアカウントを作成してサインインする。
// POST /signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	email := r.PostFormValue("email")
	if err := c.Auth.Register(r.Context(), email, r.PostFormValue("password")); err != nil {
		h.authFailed(w, r, c, viewSignUp, "サインアップ", identity.ActionSignUp, email, err)
		return
	}
	h.signedIn(w, r, c)
}

// SignOut はサインアウトしてセッションCookieを削除する。
// POST /signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	if err := c.Auth.Logout(r.Context()); err != nil {
		// サインアウトに失敗してもCookieはクリアする
		h.logger.ErrorContext(r.Context(), "failed to logout", slog.String("error", err.Error()))
	}
	h.clearCookie(w, middleware.SessionCookieName)
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.identity.GoogleEnabled() {
		http.NotFound(w, r)
		return
	}
	state, err := generateState()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.identity.GoogleLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はGoogleからのコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		h.logger.WarnContext(r.Context(), "oauth state mismatch", slog.String("query_state", state))
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	h.clearCookie(w, oauthStateCookie)

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	if err := c.Auth.LoginWithGoogle(r.Context(), code); err != nil {
		h.authFailed(w, r, c, viewSignIn, "サインイン", identity.ActionGoogle, "", err)
		return
	}
	h.signedIn(w, r, c)
}

// ResetPage はパスワードリセットの申請フォームを表示する。
// GET /password/reset
func (h *AuthHandler) ResetPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, viewReset, h.pageData(r, "パスワードのリセット"))
}

// Reset はパスワードリセット用のリンクを送信する。
// POST /password/reset
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	email := r.PostFormValue("email")
	data := h.pageData(r, "パスワードのリセット")
	data.Email = email
	if err := c.Auth.SendPasswordReset(r.Context(), email); err != nil {
		h.logFailure(r, "password reset request failed", err)
		data.addAlert(identity.UserMessage(identity.ActionPasswordReset, err))
		h.render(w, r, statusForAuthError(err), viewReset, data)
		return
	}
	data.Notice = resetSentNotice
	h.render(w, r, http.StatusOK, viewReset, data)
}

// ResetConfirmPage は新しいパスワードの入力フォームを表示する。
// GET /password/reset/confirm?token=xxx
func (h *AuthHandler) ResetConfirmPage(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(r, "新しいパスワードの設定")
	data.Token = r.URL.Query().Get("token")
	h.render(w, r, http.StatusOK, viewResetConfirm, data)
}

// ResetConfirm はトークンを検証して新しいパスワードを設定する。
// POST /password/reset/confirm
func (h *AuthHandler) ResetConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.PostFormValue("token")
	if err := h.identity.ResetPassword(r.Context(), token, r.PostFormValue("password")); err != nil {
		h.logFailure(r, "password reset failed", err)
		data := h.pageData(r, "新しいパスワードの設定")
		data.Token = token
		data.addAlert(identity.UserMessage(identity.ActionPasswordReset, err))
		h.render(w, r, statusForAuthError(err), viewResetConfirm, data)
		return
	}
	data := h.pageData(r, "サインイン")
	data.Notice = passwordResetNotice
	data.GoogleEnabled = h.identity.GoogleEnabled()
	h.render(w, r, http.StatusOK, viewSignIn, data)
}

func (h *AuthHandler) formPage(w http.ResponseWriter, r *http.Request, view, title string) {
	if c, err := middleware.ClientFromContext(r.Context()); err == nil && c.SignedIn() {
		http.Redirect(w, r, "/"+client.PageHome, http.StatusSeeOther)
		return
	}
	data := h.pageData(r, title)
	data.GoogleEnabled = h.identity.GoogleEnabled()
	h.render(w, r, http.StatusOK, view, data)
}

func (h *AuthHandler) authFailed(w http.ResponseWriter, r *http.Request, c *client.Client, view, title string, action identity.Action, email string, err error) {
	h.logFailure(r, "authentication failed", err)
	data := h.pageData(r, title)
	data.Header = c.Header.View()
	data.Email = email
	data.GoogleEnabled = h.identity.GoogleEnabled()
	data.addAlert(identity.UserMessage(action, err))
	h.render(w, r, statusForAuthError(err), view, data)
}

// signedIn は認証セッションIDをCookieに保存してホームへ移動する。
func (h *AuthHandler) signedIn(w http.ResponseWriter, r *http.Request, c *client.Client) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    c.Auth.AuthSessionID(),
		Path:     "/",
		Domain:   h.config.Cookie.Domain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/"+client.PageHome, http.StatusSeeOther)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) client(w http.ResponseWriter, r *http.Request) (*client.Client, bool) {
	c, err := middleware.ClientFromContext(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return c, true
}

func (h *AuthHandler) pageData(r *http.Request, title string) *PageData {
	data := &PageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if c, err := middleware.ClientFromContext(r.Context()); err == nil {
		data.Header = c.Header.View()
	}
	return data
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, view string, data *PageData) {
	h.views.render(w, r, status, view, data)
}

// logFailure は入力検証以外の失敗をログに残す。
func (h *AuthHandler) logFailure(r *http.Request, msg string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Category == model.CategoryValidation {
		return
	}
	h.logger.WarnContext(r.Context(), msg, slog.String("error", err.Error()))
}

// statusForAuthError は認証の失敗をHTTPステータスに変換する。
func statusForAuthError(err error) int {
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		if idErr.Code == identity.CodeEmailAlreadyInUse {
			return http.StatusConflict
		}
		return http.StatusUnauthorized
	}
	return middleware.StatusForError(err)
}

// generateState はOAuth stateパラメータ用のランダム文字列を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
