package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandAddUser は端末からユーザーを作成することを示す。
	CommandAddUser Command = "adduser"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "adduser":
		return CommandAddUser
	default:
		return CommandServe
	}
}

// subcommandArgs はサブコマンド名を除いた引数を返す。
func subcommandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// MigrateOptions はmigrateサブコマンドの引数。
type MigrateOptions struct {
	Action MigrateAction
	Steps  int
}

// ParseMigrateArgs は "migrate [up|down [-steps N]|version]" を解析する。
// 操作の省略時はupとする。
func ParseMigrateArgs(args []string, output io.Writer) (MigrateOptions, error) {
	opts := MigrateOptions{Action: MigrateUp}
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		opts.Action = MigrateAction(args[0])
		args = args[1:]
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&opts.Steps, "steps", 1, "number of migrations to roll back (down only)")
	if err := fs.Parse(args); err != nil {
		return MigrateOptions{}, err
	}

	switch opts.Action {
	case MigrateUp, MigrateVersion:
	case MigrateDown:
		if opts.Steps <= 0 {
			return MigrateOptions{}, fmt.Errorf("-steps must be positive: %d", opts.Steps)
		}
	default:
		return MigrateOptions{}, fmt.Errorf("unknown migrate action %q (up, down, version)", opts.Action)
	}
	return opts, nil
}

// AddUserOptions はadduserサブコマンドの引数。パスワードは端末から入力する。
type AddUserOptions struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// ParseAddUserArgs は "adduser -username NAME [-email ADDR] [-first-name X] [-last-name Y]" を解析する。
func ParseAddUserArgs(args []string, output io.Writer) (AddUserOptions, error) {
	var opts AddUserOptions

	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.Username, "username", "", "login name (required)")
	fs.StringVar(&opts.Email, "email", "", "email address")
	fs.StringVar(&opts.FirstName, "first-name", "", "first name")
	fs.StringVar(&opts.LastName, "last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return AddUserOptions{}, err
	}

	if opts.Username == "" {
		return AddUserOptions{}, errors.New("-username is required")
	}
	return opts, nil
}
