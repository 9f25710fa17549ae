package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーとクリーンアップジョブを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れの認証セッションの削除のみを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はストアのスキーマを最新にする。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// curlを持たないdistrolessイメージのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commandSummaries = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "Webサーバーを起動する（既定）"},
	{CommandWorker, "期限切れセッションの削除を定期実行する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "起動中のサーバーのヘルスチェックを行う"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返し、未知のサブコマンドはエラーとする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commandSummaries {
		if args[0] == string(c.cmd) {
			return c.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q\n%s", args[0], Usage())
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: postboard [command]\n\ncommands:\n")
	for _, c := range commandSummaries {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	return b.String()
}
