package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a one-line status while a long operation runs. On a
// non-terminal writer it prints the message once and stays silent.
type Spinner struct {
	w       io.Writer
	message string
	animate bool

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner returns a spinner that writes to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:       w,
		message: message,
		animate: isTerminal(w),
		done:    make(chan struct{}),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (s *Spinner) Start() {
	if !s.animate {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-s.done:
				fmt.Fprint(s.w, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(s.w, "\r%s %s", Bold.Render(spinnerFrames[i%len(spinnerFrames)]), s.message)
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}
