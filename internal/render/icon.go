package render

import "strings"

// DefaultIcon はアイコン未設定時に表示する画像のパス。
const DefaultIcon = "/asset/avatar.png"

// AnonymousName は投稿者名が取得できない場合の表示名。
const AnonymousName = "Anonymous"

// IconSource は保存されているアイコン値を<img>のsrcに変換する。
//   - 空文字列: DefaultIcon
//   - "data:"で始まる値: そのまま
//   - それ以外: PNGのbase64とみなしてdata URLにする
func IconSource(icon string) string {
	icon = strings.TrimSpace(icon)
	switch {
	case icon == "":
		return DefaultIcon
	case strings.HasPrefix(icon, "data:"):
		return icon
	default:
		return "data:image/png;base64," + icon
	}
}

// DisplayName は空の名前をAnonymousNameに置き換える。
func DisplayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return AnonymousName
	}
	return name
}
