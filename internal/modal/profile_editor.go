package modal

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/profile"
)

// プロフィール編集モーダルのメッセージと制限
const (
	ProfileFieldsRequiredMessage = "名前とメールアドレスを入力してください。"
	ProfileFailedMessage         = "プロフィールの更新に失敗しました。"
	IconInvalidMessage           = "アイコンにはPNG, JPEG, GIF, WebPの画像を指定してください。"
	IconTooLargeMessage          = "アイコン画像のサイズが大きすぎます。"
	MaxIconBytes                 = 256 << 10
)

var iconTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// IconUpload はアップロードされたアイコン画像。
type IconUpload struct {
	Data []byte
}

// ProfileInput はプロフィール編集の送信内容。Iconがnilの場合アイコンは変更しない。
type ProfileInput struct {
	Name         string
	Email        string
	Introduction string
	Icon         *IconUpload
}

// ProfileForm はプロフィール編集モーダルの表示内容。
type ProfileForm struct {
	State        State
	Name         string
	Email        string
	Introduction string
	Alert        string
}

// ProfileEditor はプロフィール編集モーダル。
type ProfileEditor struct {
	machine
	deps      Deps
	onSuccess SuccessFunc

	profileID    string
	name         string
	email        string
	introduction string
}

// NewProfileEditor はProfileEditorを生成する。onSuccessは更新後に呼ばれる。
func NewProfileEditor(deps Deps, onSuccess SuccessFunc) *ProfileEditor {
	return &ProfileEditor{deps: deps.withDefaults(), onSuccess: onSuccess}
}

// Open は現在のプロフィールの名前、メールアドレス、説明文を読み込んでモーダルを表示する。
func (p *ProfileEditor) Open(ctx context.Context) error {
	current, err := profile.Resolve(ctx, p.deps.Store, p.deps.Sessions.Current())

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.alert = alertFor(err, ProfileFailedMessage)
		logFailure(ctx, p.deps.Logger, "profile", err)
		return err
	}
	if err := p.show(); err != nil {
		return err
	}
	p.profileID = current.ID
	p.name, p.email, p.introduction = current.Name, current.Email, current.Introduction
	return nil
}

// Cancel はモーダルを閉じて入力内容を破棄する。
func (p *ProfileEditor) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.hide(); err != nil {
		return err
	}
	p.clear()
	return nil
}

// Submit はname, email, introductionを更新する。updatedAtはゲートウェイが付与する。
// アイコンはinput.Iconが指定された場合のみ更新する。
func (p *ProfileEditor) Submit(ctx context.Context, input ProfileInput) error {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	intro := input.Introduction

	p.mu.Lock()
	if err := p.ready(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.name, p.email, p.introduction = name, email, intro
	if name == "" || email == "" {
		p.alert = ProfileFieldsRequiredMessage
		p.mu.Unlock()
		return model.NewValidationError(ProfileFieldsRequiredMessage)
	}

	fields := map[string]any{
		"name":         name,
		"email":        email,
		"introduction": intro,
	}
	if input.Icon != nil {
		icon, err := EncodeIcon(input.Icon.Data)
		if err != nil {
			p.alert = alertFor(err, IconInvalidMessage)
			p.mu.Unlock()
			return err
		}
		fields["icon"] = icon
	}
	_ = p.begin()
	profileID := p.profileID
	p.mu.Unlock()

	err := p.deps.Store.Update(ctx, model.CollectionProfiles, profileID, fields)
	if err != nil {
		err = fmt.Errorf("failed to update profile: %w", err)
	}
	p.finish(err, ProfileFailedMessage)
	if err != nil {
		logFailure(ctx, p.deps.Logger, "profile", err)
		return err
	}

	p.mu.Lock()
	p.clear()
	p.mu.Unlock()

	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordPostMutation("profile")
	}
	refresh(ctx, p.deps.Logger, "profile", p.onSuccess)
	return nil
}

// Form は現在の表示内容を返す。
func (p *ProfileEditor) Form() ProfileForm {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProfileForm{
		State:        p.state,
		Name:         p.name,
		Email:        p.email,
		Introduction: p.introduction,
		Alert:        p.alert,
	}
}

func (p *ProfileEditor) clear() {
	p.profileID, p.name, p.email, p.introduction = "", "", "", ""
}

// EncodeIcon は画像データをdata URLに変換する。形式は内容から判定する。
func EncodeIcon(data []byte) (string, error) {
	if len(data) == 0 {
		return "", model.NewValidationError(IconInvalidMessage)
	}
	if len(data) > MaxIconBytes {
		return "", model.NewValidationError(IconTooLargeMessage)
	}
	contentType := http.DetectContentType(data)
	if !iconTypes[contentType] {
		return "", model.NewValidationError(IconInvalidMessage)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
