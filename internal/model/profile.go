package model

import "time"

// CollectionProfiles はプロフィールドキュメントのコレクション名。
const CollectionProfiles = "users"

// Profile はユーザーの表示用プロフィールを表す。
// Sessionとは別に保存され、1つのSessionに1つのプロフィールが存在する前提で扱う。
type Profile struct {
	ID           string
	AccountID    string
	Email        string
	Name         string
	Introduction string
	Icon         string // 空文字列 | data URL | ヘッダーなしのbase64
	UpdatedAt    time.Time
}

// ProfileFromData はドキュメントのフィールドからProfileを復元する。
func ProfileFromData(id string, data map[string]any) *Profile {
	return &Profile{
		ID:           id,
		AccountID:    StringValue(data["accountId"]),
		Email:        StringValue(data["email"]),
		Name:         StringValue(data["name"]),
		Introduction: StringValue(data["introduction"]),
		Icon:         StringValue(data["icon"]),
		UpdatedAt:    TimeValue(data["updatedAt"]),
	}
}

// Data はProfileをドキュメントのフィールドに変換する。
func (p *Profile) Data() map[string]any {
	return map[string]any{
		"accountId":    p.AccountID,
		"email":        p.Email,
		"name":         p.Name,
		"introduction": p.Introduction,
		"icon":         p.Icon,
		"updatedAt":    p.UpdatedAt,
	}
}

// Ref はこのプロフィールを指す参照を返す。
func (p *Profile) Ref() Ref {
	return Ref{Collection: CollectionProfiles, ID: p.ID}
}
