package agent

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// StuckPatterns are substrings that mean the agent is waiting for input it
// will never get. Matching is case-insensitive.
var StuckPatterns = []string{
	"Do you want to proceed",
	"Press Enter",
	"(Y/n)",
	"(y/N)",
	"Approve?",
	"waiting for approval",
	"Please run 'cline auth'",
}

// matchStuck returns the first stuck pattern contained in line
func matchStuck(line string) (string, bool) {
	lower := strings.ToLower(line)
	for _, p := range StuckPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// stuckFlag records the first stuck reason seen by either reader
type stuckFlag struct {
	mu     sync.Mutex
	reason string
	set    bool
}

// Set stores reason unless a reason was already recorded
func (f *stuckFlag) Set(reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return false
	}
	f.reason = reason
	f.set = true
	return true
}

func (f *stuckFlag) Get() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason, f.set
}

// lineBuffer accumulates one stream's lines. The heartbeat reads its length
// while the reader is still appending.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *lineBuffer) Append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

func (b *lineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// readStream consumes r line by line until EOF. After a stuck pattern it
// records the reason and discards the rest of the stream, keeping the pipe
// open so the process lives until the watchdog kills it.
func readStream(r *io.PipeReader, buf *lineBuffer, label string, flag *stuckFlag, logger *slog.Logger) error {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			line := strings.TrimRight(raw, "\r\n")
			buf.Append(line)
			if strings.TrimSpace(line) != "" {
				logger.Info(fmt.Sprintf("[cline %s] %s", label, line))
			}
			if pattern, ok := matchStuck(line); ok {
				flag.Set(fmt.Sprintf("Detected stuck pattern: '%s' in: %s", pattern, line))
				_, err := io.Copy(io.Discard, br)
				return ignoreClosed(err)
			}
		}
		if err != nil {
			if err = ignoreClosed(err); err != nil {
				return fmt.Errorf("reading %s: %w", label, err)
			}
			return nil
		}
	}
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
