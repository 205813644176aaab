package repl

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// SplitCommandLine tokenizes a command line with shell-like quoting:
// single quotes are literal, double quotes honor backslash escapes,
// and an unquoted backslash escapes the next rune.
func SplitCommandLine(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'':
			inToken = true
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '\'' {
					end = j
					break
				}
			}
			if end == -1 {
				return nil, fmt.Errorf("unterminated single quote")
			}
			cur.WriteString(string(runes[i+1 : end]))
			i = end

		case c == '"':
			inToken = true
			closed := false
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '\\' && j+1 < len(runes) {
					cur.WriteRune(runes[j+1])
					j++
					i = j
					continue
				}
				if runes[j] == '"' {
					i = j
					closed = true
					break
				}
				cur.WriteRune(runes[j])
				i = j
			}
			if !closed {
				return nil, fmt.Errorf("unterminated double quote")
			}

		case c == '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("trailing backslash")
			}
			inToken = true
			cur.WriteRune(runes[i+1])
			i++

		case c == ' ' || c == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}

		default:
			inToken = true
			cur.WriteRune(c)
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return tokens, nil
}

// PromptAuthToken reads the auth token without echoing when stdin is a
// terminal, falling back to a plain line read otherwise.
func PromptAuthToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "auth token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
