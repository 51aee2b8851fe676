package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/hr-voice-lab/internal/logging"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Mirror appends a human readable copy of each call to <Dir>/<callSid>.txt.
// It is a secondary log; the Store stays authoritative. A nil Mirror is a
// no-op.
type Mirror struct {
	Dir string
	// Locking takes an advisory flock on <file>.lock around each append so
	// several processes can share Dir.
	Locking bool
}

func NewMirror(dir string, locking bool) *Mirror {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Mirror{Dir: dir, Locking: locking}
}

// PathFor returns the mirror file for callSID.
func (m *Mirror) PathFor(callSID string) string {
	name := unsafeName.ReplaceAllString(callSID, "_")
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(m.Dir, name+".txt")
}

func (m *Mirror) AppendTurn(callSID string, role Role, text string, at time.Time) error {
	if m == nil {
		return nil
	}
	line := fmt.Sprintf("[%s] %s: %s\n", formatTime(at), strings.ToUpper(string(role)), text)
	return m.append(callSID, line)
}

func (m *Mirror) AppendSummary(callSID, summary string, at time.Time) error {
	if m == nil {
		return nil
	}
	line := fmt.Sprintf("\n[%s] SUMMARY: %s\n", formatTime(at), summary)
	return m.append(callSID, line)
}

func (m *Mirror) append(callSID, line string) error {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("mirror: create dir %s: %w", m.Dir, err)
	}
	path := m.PathFor(callSID)

	if m.Locking {
		lf := path + ".lock"
		lock, err := os.OpenFile(lf, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			logging.Warnw("mirror: failed to open lock file", "lock", lf, "err", err, "call.sid", callSID)
			return fmt.Errorf("failed to open lock file %s: %w", lf, err)
		}
		defer lock.Close()
		if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
			logging.Warnw("mirror: failed to flock lock file", "lock", lf, "err", err, "call.sid", callSID)
			return fmt.Errorf("failed to lock file %s: %w", lf, err)
		}
		defer syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("mirror: open %s: %w", path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("mirror: write %s: %w", path, err)
	}
	return f.Close()
}
