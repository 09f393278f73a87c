package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"medwarehouse/internal/services"
)

// Prompter asks the operator for secrets during an interactive login.
type Prompter interface {
	Prompt(ctx context.Context, label string, secret bool) (string, error)
}

// LoginResult describes the authorized account.
type LoginResult struct {
	UserID   int64
	Username string
	Already  bool
}

// Login runs the interactive code flow and stores the session at the
// configured path. An already authorized session is left untouched.
func (t *Telegram) Login(ctx context.Context, prompter Prompter) (LoginResult, error) {
	client, err := t.newClient()
	if err != nil {
		return LoginResult{}, err
	}
	var result LoginResult
	err = client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return services.Wrap(services.ErrTransient, "telegram", "auth status", "", err)
		}
		if !status.Authorized {
			flow := auth.NewFlow(promptAuth{phone: t.cfg.Phone, prompter: prompter}, auth.SendCodeOptions{})
			if err := flow.Run(ctx, client.Auth()); err != nil {
				return services.Wrap(services.ErrConfiguration, "telegram", "login", "authentication failed", err)
			}
		} else {
			result.Already = true
		}
		self, err := client.Self(ctx)
		if err != nil {
			return services.Wrap(services.ErrTransient, "telegram", "self", "", err)
		}
		result.UserID = self.ID
		result.Username = self.Username
		return nil
	})
	return result, err
}

type promptAuth struct {
	phone    string
	prompter Prompter
}

func (p promptAuth) Phone(ctx context.Context) (string, error) {
	if strings.TrimSpace(p.phone) != "" {
		return p.phone, nil
	}
	return p.prompter.Prompt(ctx, "Phone number", false)
}

func (p promptAuth) Password(ctx context.Context) (string, error) {
	return p.prompter.Prompt(ctx, "2FA password", true)
}

func (p promptAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	code, err := p.prompter.Prompt(ctx, "Login code", false)
	return strings.TrimSpace(code), err
}

func (promptAuth) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return nil
}

func (promptAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("account sign-up is not supported; register the number with an official client first")
}
