package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// GetSimpleText prints prompt to w and reads one trimmed line from sc.
// It returns io.EOF when input is exhausted.
func GetSimpleText(sc *bufio.Scanner, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(sc.Text()), nil
}

// AskUsername prompts until a non-blank username is entered.
func AskUsername(sc *bufio.Scanner, w io.Writer) (string, error) {
	for {
		name, err := GetSimpleText(sc, "Choose a username:", w)
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
		fmt.Fprintln(w, msgEmptyUsername)
	}
}
