package model

import "time"

// Session は現在認証されているアイデンティティを表す。
// Session Storeが排他的に保持し、このシステムでは永続化しない。
type Session struct {
	Identifier  string
	DisplayName string
	Email       string
}

// Account はIdentity Providerが管理するログインアカウント。
// パスワードハッシュを含むため、Identity Provider外には公開しない。
type Account struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	GoogleSubject string
	CreatedAt     time.Time
}

// AuthSession はCookieで永続化されるログイン状態を表す。
type AuthSession struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
}

// Session はアカウントから公開用のSessionを生成する。
func (a *Account) Session() *Session {
	return &Session{
		Identifier:  a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
	}
}

// コレクション名
const (
	CollectionAccounts     = "accounts"
	CollectionAuthSessions = "auth_sessions"
)

// AccountFromData はドキュメントのフィールドからAccountを復元する。
func AccountFromData(id string, data map[string]any) *Account {
	return &Account{
		ID:            id,
		Email:         StringValue(data["email"]),
		DisplayName:   StringValue(data["displayName"]),
		PasswordHash:  StringValue(data["passwordHash"]),
		GoogleSubject: StringValue(data["googleSubject"]),
		CreatedAt:     TimeValue(data["createdAt"]),
	}
}

// Data はAccountをドキュメントのフィールドに変換する。
func (a *Account) Data() map[string]any {
	return map[string]any{
		"email":         a.Email,
		"displayName":   a.DisplayName,
		"passwordHash":  a.PasswordHash,
		"googleSubject": a.GoogleSubject,
		"createdAt":     a.CreatedAt,
	}
}

// AuthSessionFromData はドキュメントのフィールドからAuthSessionを復元する。
func AuthSessionFromData(id string, data map[string]any) *AuthSession {
	return &AuthSession{
		ID:        id,
		AccountID: StringValue(data["accountId"]),
		ExpiresAt: TimeValue(data["expiresAt"]),
	}
}

// Data はAuthSessionをドキュメントのフィールドに変換する。
func (s *AuthSession) Data() map[string]any {
	return map[string]any{
		"accountId": s.AccountID,
		"expiresAt": s.ExpiresAt,
	}
}
