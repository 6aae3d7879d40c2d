package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
)

// Confirm gates a destructive operation on the operator typing phrase
// exactly. Anything else, including EOF, refuses. assumeYes skips the gate
// for unattended runs.
func Confirm(in io.Reader, out io.Writer, phrase string, assumeYes bool) error {
	if assumeYes {
		return nil
	}
	fmt.Fprintf(out, "This is destructive. Type %q to continue: ", phrase)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return constants.ErrNotConfirmed
	}
	if strings.TrimSpace(scanner.Text()) != phrase {
		return constants.ErrNotConfirmed
	}
	return nil
}
