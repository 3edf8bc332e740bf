package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/aidanlsb/assetcat/internal/ui"
)

// stdin is where confirmation answers are read from. Tests swap it.
var stdin io.Reader = os.Stdin

// isInteractive is swapped by tests.
var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

func shouldPromptForConfirm() bool {
	if isJSONOutput() {
		return false
	}
	return isInteractive()
}

func promptForConfirm(message string) bool {
	if !shouldPromptForConfirm() {
		return false
	}
	if message == "" {
		message = "Apply changes?"
	}
	fmt.Fprintf(stdout, "%s %s ", message, ui.Hint("[y/N]"))
	reader := bufio.NewReader(stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
