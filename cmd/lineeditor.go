package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const historySize = 500

// lineEditor reads REPL input with readline on a terminal and with a plain
// scanner otherwise (pipes, tests, editor shells).
type lineEditor struct {
	rl      *readline.Instance
	scanner *bufio.Scanner
	out     io.Writer
}

func newLineEditor(in io.Reader, out io.Writer) *lineEditor {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) && os.Getenv("INSIDE_EMACS") == "" {
		rl, err := readline.NewFromConfig(&readline.Config{
			HistoryFile:            historyPath(),
			HistoryLimit:           historySize,
			DisableAutoSaveHistory: true,
		})
		if err == nil {
			return &lineEditor{rl: rl, out: out}
		}
		logger.Warn("readline init failed, using basic input", "err", err)
	}
	return &lineEditor{scanner: bufio.NewScanner(in), out: out}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pumplink_history")
}

func (le *lineEditor) interactive() bool {
	return le.rl != nil
}

// ReadLine returns the next line, or io.EOF on Ctrl-D, Ctrl-C or end of input.
func (le *lineEditor) ReadLine(prompt string) (string, error) {
	if le.rl != nil {
		le.rl.SetPrompt(prompt)
		line, err := le.rl.Readline()
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			le.rl.SaveToHistory(trimmed)
		}
		return line, nil
	}

	fmt.Fprint(le.out, prompt)
	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

func (le *lineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}
