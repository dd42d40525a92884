package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers to interactive questions.
type prompter struct {
	in       *bufio.Reader
	out      io.Writer
	fd       int
	terminal bool // in is a TTY, so secrets can be read without echo
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

func stdinPrompter() *prompter {
	p := newPrompter(os.Stdin, os.Stdout)
	p.fd = int(os.Stdin.Fd())
	p.terminal = term.IsTerminal(p.fd)
	return p
}

// Line asks label and returns the trimmed answer, or def when it is empty.
func (p *prompter) Line(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	input, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// Required asks until a non-empty answer is given.
func (p *prompter) Required(label string) (string, error) {
	for {
		v, err := p.Line(label+" (required)", "")
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		fmt.Fprintln(p.out, "  Error: a value is required")
	}
}

// Int asks for a positive number, keeping def on empty or invalid input.
func (p *prompter) Int(label string, def int) (int, error) {
	v, err := p.Line(label, strconv.Itoa(def))
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		fmt.Fprintf(p.out, "  Invalid number, using %d\n", def)
		return def, nil
	}
	return n, nil
}

// Confirm asks a yes/no question.
func (p *prompter) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", label, hint)

	input, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return def, err
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, nil
	}
}

// Secret reads a value without echo when attached to a terminal.
func (p *prompter) Secret(label string) (string, error) {
	if !p.terminal {
		return p.Line(label, "")
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(b)), nil
}
