package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

// ask prints prompt and reads one trimmed line. A final line without a
// newline is accepted.
func (a *App) ask(prompt string) (string, error) {
	if _, err := fmt.Fprint(a.out, prompt+": "); err != nil {
		return "", err
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads a secret without echo when stdin is a terminal, and as a
// plain line otherwise so input can be piped.
func (a *App) password(prompt string) (string, error) {
	if _, err := fmt.Fprint(a.out, prompt+": "); err != nil {
		return "", err
	}

	fd := stdinFd()
	if !isTerminal(fd) {
		line, err := a.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	pw, err := readPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// newPassword asks for a password twice.
func (a *App) newPassword(prompt string) (string, string, error) {
	pw, err := a.password(prompt)
	if err != nil {
		return "", "", err
	}
	confirm, err := a.password("Confirm password")
	if err != nil {
		return "", "", err
	}
	return pw, confirm, nil
}

// valueOr returns value, or asks for it when empty.
func (a *App) valueOr(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	return a.ask(prompt)
}
