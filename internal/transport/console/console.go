// Package console is a notification surface that writes to a terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"todox/internal/transport"
)

const Name = "console"

type Config struct {
	Permission transport.Permission
	Out        io.Writer
	// In answers the permission prompt. Nil means the prompt is declined.
	In io.Reader
	// Now stamps displayed lines. Defaults to time.Now.
	Now func() time.Time
}

// Surface prints notifications as single lines. Dismissed notifications
// are tracked but cannot be erased from the terminal.
type Surface struct {
	mu    sync.Mutex
	out   io.Writer
	in    *bufio.Reader
	now   func() time.Time
	perm  transport.Permission
	asked bool
	seq   int
	open  map[string]string // ref id -> tag
}

func New(cfg Config) *Surface {
	s := &Surface{
		out:  cfg.Out,
		now:  cfg.Now,
		perm: cfg.Permission,
		open: map[string]string{},
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if cfg.In != nil {
		s.in = bufio.NewReader(cfg.In)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.perm == "" {
		s.perm = transport.PermissionGranted
	}
	return s
}

func (s *Surface) Name() string    { return Name }
func (s *Surface) Supported() bool { return true }

func (s *Surface) Permission() transport.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perm
}

// RequestPermission asks once on the input reader; any answer other than
// y/yes denies.
func (s *Surface) RequestPermission(ctx context.Context) (transport.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perm != transport.PermissionDefault || s.asked {
		return s.perm, nil
	}
	s.asked = true
	if err := ctx.Err(); err != nil {
		return s.perm, err
	}
	if s.in == nil {
		s.perm = transport.PermissionDenied
		return s.perm, nil
	}

	fmt.Fprint(s.out, "Allow todox to show task reminders? [y/N]: ")
	line, err := s.in.ReadString('\n')
	if err != nil && err != io.EOF {
		s.perm = transport.PermissionDenied
		return s.perm, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		s.perm = transport.PermissionGranted
	default:
		s.perm = transport.PermissionDenied
	}
	return s.perm, nil
}

func (s *Surface) Show(ctx context.Context, m transport.Message) (transport.Ref, error) {
	if err := ctx.Err(); err != nil {
		return transport.Ref{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := strconv.Itoa(s.seq)
	if _, err := fmt.Fprintf(s.out, "%s  %s: %s\n", s.now().Format("15:04:05"), m.Title, m.Body); err != nil {
		return transport.Ref{}, err
	}
	s.open[id] = m.Tag
	return transport.Ref{Surface: Name, ID: id}, nil
}

func (s *Surface) Dismiss(ctx context.Context, ref transport.Ref) error {
	_ = ctx
	s.mu.Lock()
	delete(s.open, ref.ID)
	s.mu.Unlock()
	return nil
}

// Open returns the tags of notifications that are shown and not dismissed.
func (s *Surface) Open() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.open))
	for _, tag := range s.open {
		out = append(out, tag)
	}
	return out
}
