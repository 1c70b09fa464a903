package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmKeys struct {
	Yes    key.Binding
	No     key.Binding
	Toggle key.Binding
	Submit key.Binding
	Quit   key.Binding
}

var defaultConfirmKeys = confirmKeys{
	Yes:    key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
	No:     key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "no")),
	Toggle: key.NewBinding(key.WithKeys("left", "right", "h", "l", "tab"), key.WithHelp("←/→", "toggle")),
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
	Quit:   key.NewBinding(key.WithKeys("esc", "ctrl+c", "q"), key.WithHelp("esc", "cancel")),
}

// confirmModel is a yes/no prompt. It defaults to No.
type confirmModel struct {
	prompt string
	choice bool
	done   bool
	keys   confirmKeys
}

func newConfirmModel(prompt string) confirmModel {
	return confirmModel{prompt: prompt, keys: defaultConfirmKeys}
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, m.keys.Yes):
		m.choice, m.done = true, true
	case key.Matches(k, m.keys.No), key.Matches(k, m.keys.Quit):
		m.choice, m.done = false, true
	case key.Matches(k, m.keys.Toggle):
		m.choice = !m.choice
	case key.Matches(k, m.keys.Submit):
		m.done = true
	default:
		return m, nil
	}
	if m.done {
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		answer := "no"
		if m.choice {
			answer = "yes"
		}
		return fmt.Sprintf("%s %s\n", m.prompt, DimStyle.Render(answer))
	}
	yes, no := " Yes ", " No "
	if m.choice {
		yes = selectedStyle.Render(yes)
	} else {
		no = selectedStyle.Render(no)
	}
	help := DimStyle.Render("y/n, ←/→ to toggle, enter to confirm")
	return fmt.Sprintf("%s %s %s\n%s\n", m.prompt, yes, no, help)
}

// Confirm asks a yes/no question. On a terminal it runs an interactive
// prompt; otherwise it reads one line from in and accepts y or yes.
func Confirm(prompt string) (bool, error) {
	if IsTerminal(os.Stdin) && IsTerminal(os.Stdout) {
		final, err := tea.NewProgram(newConfirmModel(prompt)).Run()
		if err != nil {
			return false, err
		}
		return final.(confirmModel).choice, nil
	}
	return ConfirmLine(os.Stdin, os.Stdout, prompt)
}

// ConfirmLine is the line-based fallback of Confirm
func ConfirmLine(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
