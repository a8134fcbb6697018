package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/runTech0704/Study-Savings/internal/auth"
	"github.com/runTech0704/Study-Savings/internal/config"
	"github.com/runTech0704/Study-Savings/internal/model"
)

// userRegistrar はadduserが使う登録処理。auth.Serviceが実装する。
type userRegistrar interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
}

// passwordPrompter はプロンプトを表示してパスワードを1行読み取る。
type passwordPrompter func(prompt string) (string, error)

// promptPassword はテストで差し替える。
var promptPassword passwordPrompter = terminalPassword

var stdinReader = bufio.NewReader(os.Stdin)

// terminalPassword は端末ならエコーなしで、パイプなら1行そのまま読み取る。
func terminalPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := stdinReader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// runAddUser はパスワードログイン用のユーザーを作成する。
func runAddUser(ctx context.Context, cfg *config.Config, opts AddUserOptions, out io.Writer) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	u, err := createUser(ctx, newAuthService(db, cfg, tokens, false), opts, promptPassword)
	if err != nil {
		return err
	}

	slog.Info("user created",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	fmt.Fprintf(out, "created user %q (%s)\n", u.Username, u.ID)
	return nil
}

// createUser はパスワードを2回入力させてユーザーを登録する。
// パスワードの検証と重複チェックはRegisterに委ねる。
func createUser(ctx context.Context, registrar userRegistrar, opts AddUserOptions, prompt passwordPrompter) (*model.User, error) {
	password, err := prompt("Password: ")
	if err != nil {
		return nil, err
	}
	password2, err := prompt("Password (again): ")
	if err != nil {
		return nil, err
	}

	u, err := registrar.Register(ctx, auth.RegisterInput{
		Username:  opts.Username,
		Email:     opts.Email,
		Password:  password,
		Password2: password2,
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("cannot create user: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
