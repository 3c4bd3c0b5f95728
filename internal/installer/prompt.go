package installer

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Questions asked during installation.
const (
	QuestionBun   = "Do you have Bun installed?"
	QuestionMongo = "Do you want to use MongoDB?"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("installation aborted")

// Prompter asks yes/no questions.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// FormPrompter asks questions with an interactive huh form.
type FormPrompter struct{}

func (FormPrompter) Confirm(question string) (bool, error) {
	var answer bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("prompt %q: %w", question, err)
	}
	return answer, nil
}

// StaticPrompter answers from preset values, for non-interactive runs.
type StaticPrompter map[string]bool

func (p StaticPrompter) Confirm(question string) (bool, error) {
	answer, ok := p[question]
	if !ok {
		return false, fmt.Errorf("no answer for %q in non-interactive mode", question)
	}
	return answer, nil
}

// Interactive reports whether f is attached to a terminal.
func Interactive(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
