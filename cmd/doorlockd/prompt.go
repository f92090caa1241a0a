package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mirkobrombin/go-doorlock/v1/auth"
)

// prompter asks the operator for values at startup.
type prompter interface {
	Interactive() bool
	Line(label string) (string, error)
	Password(label string) (string, error)
}

// terminalPrompter reads from stdin and writes labels to stderr.
type terminalPrompter struct{}

func (terminalPrompter) Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (terminalPrompter) Line(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (terminalPrompter) Password(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var errPasswordMismatch = errors.New("passwords do not match")

// promptNewPassword reads a password twice.
func promptNewPassword(p prompter) (string, error) {
	if !p.Interactive() {
		return "", fmt.Errorf("%w: stdin is not a terminal, run `doorlockd passwd` interactively", auth.ErrNoPassword)
	}
	pass, err := p.Password("New door password: ")
	if err != nil {
		return "", err
	}
	confirm, err := p.Password("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pass != confirm {
		return "", errPasswordMismatch
	}
	return pass, nil
}

// ensurePasswordFile prompts for a password when none is stored yet.
func ensurePasswordFile(path string, p prompter) error {
	if auth.PasswordFileExists(path) {
		return nil
	}
	pass, err := promptNewPassword(p)
	if err != nil {
		return err
	}
	return auth.WritePasswordFile(path, pass)
}
