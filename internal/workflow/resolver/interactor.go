package resolver

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/JL710/workflowo/internal/util"
)

// Interactor reads interactive values during the resolution pass.
// Tests inject a scripted implementation.
type Interactor interface {
	// ReadLine prints prompt and returns one line of input.
	ReadLine(prompt string) (string, error)
	// ReadSecret prints prompt and reads input without echoing it.
	ReadSecret(prompt string) (string, error)
}

// StdInteractor prompts on stdout and reads from the process stdin.
type StdInteractor struct {
	reader *bufio.Reader
}

func (s *StdInteractor) ReadLine(prompt string) (string, error) {
	util.Default.Print(prompt)
	if s.reader == nil {
		s.reader = bufio.NewReader(os.Stdin)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read line: %w", err)
	}
	return line, nil
}

func (s *StdInteractor) ReadSecret(prompt string) (string, error) {
	util.Default.Print(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	util.Default.Println()
	if err != nil {
		return "", fmt.Errorf("hidden input failed: %w", err)
	}
	return string(secret), nil
}
