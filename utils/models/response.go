package models

import (
	"regexp"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/grammar"
)

const thinkClose = "</think>"

// CleanResponse drops the reasoning block some models (qwen3, deepseek-r1)
// emit before their answer and trims surrounding whitespace
func CleanResponse(text string) string {
	if i := strings.LastIndex(text, thinkClose); i != -1 {
		text = text[i+len(thinkClose):]
	} else if strings.HasPrefix(strings.TrimSpace(text), "<think>") {
		// unterminated reasoning, nothing usable
		return ""
	}
	return strings.TrimSpace(text)
}

var fenceRe = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\n(.*?)```")

// ExtractCommands returns the redbiom invocations found in text, in order.
// Fenced blocks tagged bash, sh, shell, console or untagged are searched
// first; bare lines are used only when no fenced block yields a command.
// Backslash continuations are joined and a leading "$ " prompt is removed.
func ExtractCommands(text string) []string {
	var cmds []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		switch strings.ToLower(m[1]) {
		case "", "bash", "sh", "shell", "console", "zsh":
			cmds = append(cmds, commandLines(m[2])...)
		}
	}
	if len(cmds) > 0 {
		return cmds
	}
	return commandLines(fenceRe.ReplaceAllString(text, ""))
}

func commandLines(block string) []string {
	var (
		cmds    []string
		pending strings.Builder
	)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if pending.Len() == 0 {
			line = strings.TrimSpace(line)
			line = strings.TrimPrefix(line, "$ ")
			line = strings.Trim(line, "`")
			if !strings.HasPrefix(line, grammar.Program+" ") && line != grammar.Program {
				continue
			}
		} else {
			line = strings.TrimSpace(line)
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(line, "\\")))
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(line)
		cmds = append(cmds, strings.TrimSpace(pending.String()))
		pending.Reset()
	}
	if pending.Len() > 0 {
		cmds = append(cmds, strings.TrimSpace(pending.String()))
	}
	return cmds
}
