package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Spinner animates a status message while a long redbiom call runs. It only
// draws when its writer is a terminal.
type Spinner struct {
	chars    []string
	index    int
	message  string
	out      io.Writer
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool
	disabled bool
	isTTY    bool
}

func NewSpinner() *Spinner {
	return &Spinner{
		chars: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		out:   os.Stderr,
		stop:  make(chan struct{}),
		isTTY: IsTerminal(os.Stderr),
	}
}

// SetOutput redirects drawing; non-terminal writers only get the final line
func (s *Spinner) SetOutput(w io.Writer, isTTY bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
	s.isTTY = isTTY
}

// Disable prevents the spinner from showing any output
func (s *Spinner) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
}

func (s *Spinner) Start(message string) {
	s.mu.Lock()
	if s.disabled {
		s.mu.Unlock()
		return
	}
	if s.stopped {
		s.stop = make(chan struct{})
		s.stopped = false
	}
	s.message = message
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		s.mu.Lock()
		if s.isTTY {
			fmt.Fprint(s.out, "\033[?25l")
		}
		s.mu.Unlock()

		for {
			select {
			case <-stop:
				s.mu.Lock()
				if !s.disabled {
					if s.isTTY {
						fmt.Fprintf(s.out, "\r%s... done     \n\033[?25h", s.message)
					} else {
						fmt.Fprintf(s.out, "%s... done\n", s.message)
					}
				}
				s.mu.Unlock()
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.disabled && s.isTTY {
					fmt.Fprintf(s.out, "\r%s... %s", s.message, s.chars[s.index])
					s.index = (s.index + 1) % len(s.chars)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Update changes the message of a running spinner
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
	s.mu.Unlock()
	s.wg.Wait()
}
