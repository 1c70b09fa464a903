// Package ui holds the terminal presentation helpers shared by the commands.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	HeadingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	CommandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	WarnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	DimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = HeadingStyle.Reverse(true)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "⚠"
	iconStep    = "→"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ColorEnabled is false when NO_COLOR is set or stdout is not a terminal
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(os.Stdout)
}

// Printer writes styled status lines. Styles are dropped when Color is false.
type Printer struct {
	Out   io.Writer
	Color bool
}

// NewPrinter returns a Printer on stdout with color detection
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Color: ColorEnabled()}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.Color {
		return text
	}
	return s.Render(text)
}

// Heading prints a title-cased section heading, e.g. "step 1: search metadata"
// becomes "Step 1: Search Metadata".
func (p *Printer) Heading(text string) {
	fmt.Fprintln(p.Out, p.render(HeadingStyle, Title(text)))
}

func (p *Printer) Command(cmdline string) {
	fmt.Fprintf(p.Out, "  %s %s\n", iconStep, p.render(CommandStyle, cmdline))
}

func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintln(p.Out, p.render(SuccessStyle, iconSuccess+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Warn(format string, args ...interface{}) {
	fmt.Fprintln(p.Out, p.render(WarnStyle, iconWarning+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintln(p.Out, p.render(ErrorStyle, iconError+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Dim(format string, args ...interface{}) {
	fmt.Fprintln(p.Out, p.render(DimStyle, fmt.Sprintf(format, args...)))
}

// Title upper-cases the first letter of each word
func Title(s string) string {
	return cases.Title(language.English).String(s)
}
