package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"medwarehouse/internal/scraper"
)

func newTelegramCommand(ctx *commandContext) *cobra.Command {
	telegramCmd := &cobra.Command{
		Use:   "telegram",
		Short: "Telegram session management",
	}
	telegramCmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize the Telegram session used by the scraper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			prompter := newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			result, err := scraper.NewTelegram(cfg.Telegram).Login(cmd.Context(), prompter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			name := result.Username
			if name == "" {
				name = fmt.Sprintf("id %d", result.UserID)
			}
			if result.Already {
				fmt.Fprintf(out, "Session already authorized as %s\n", name)
				return nil
			}
			fmt.Fprintf(out, "Authorized as %s; session saved to %s\n", name, cfg.Telegram.SessionPath)
			return nil
		},
	})
	return telegramCmd
}

// terminalPrompter reads answers line by line; secrets are read with echo
// disabled when input is a terminal.
type terminalPrompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (p *terminalPrompter) Prompt(ctx context.Context, label string, secret bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "%s: ", label)
	if secret {
		if f, ok := p.in.(*os.File); ok {
			restore, err := disableEcho(f.Fd())
			if err == nil {
				defer func() {
					restore()
					fmt.Fprintln(p.out)
				}()
			}
		}
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
