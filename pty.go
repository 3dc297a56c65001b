package termcast

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
)

// ErrClosed is returned by PTY.Write and PTY.Resize once the pseudo-terminal
// has been torn down, either because the read loop observed EOF/error or
// because Close was called explicitly.
var ErrClosed = errors.New("termcast: pty closed")

// PTY owns an OS pseudo-terminal master and the child process attached to
// its slave. It runs a continuous read loop publishing every read's bytes,
// unreinterpreted, to its Broadcaster.
type PTY struct {
	ptmx *os.File
	cmd  *exec.Cmd

	bc *Broadcaster

	writeMu sync.Mutex // serializes writes to the PTY master
	closed  atomic.Bool
}

// StartPTY spawns name with args attached to a new pseudo-terminal of the
// given size and begins the read loop in the background. The returned PTY
// is ready for Write, Resize, and Subscribe.
func StartPTY(name string, args []string, rows, cols int, historyCap int) (*PTY, error) {
	cmd := exec.Command(name, args...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("termcast: start pty: %w", err)
	}

	p := &PTY{
		ptmx: ptmx,
		cmd:  cmd,
		bc:   NewBroadcaster(historyCap),
	}
	go p.readLoop()
	return p, nil
}

// Write enqueues bytes to the PTY master in order. It fails only once the
// PTY has been closed.
func (p *PTY) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ptmx.Write(b)
}

// Resize issues a window-size change to the PTY. It fails only once the PTY
// has been closed.
func (p *PTY) Resize(rows, cols int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Subscribe delegates to the broadcaster: returns a history snapshot and a
// live subscriber for bytes published after the snapshot was taken.
func (p *PTY) Subscribe() (*Subscriber, []byte) {
	return p.bc.Subscribe()
}

// Unsubscribe removes sub from the broadcaster's fan-out set.
func (p *PTY) Unsubscribe(sub *Subscriber) {
	p.bc.Unsubscribe(sub)
}

// Close tears down the PTY master and reaps the child process. The read
// loop observes the resulting I/O error and closes the broadcaster on its
// own.
func (p *PTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.ptmx.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	go p.cmd.Wait()
	return err
}

// readLoop reads PTY master output until EOF or a terminal error, publishing
// each read's bytes to the broadcaster in order. A zero-byte read or an
// error ends the session and closes every subscriber.
func (p *PTY) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.bc.Publish(chunk)
		}
		if err != nil || n == 0 {
			p.closed.Store(true)
			p.bc.CloseAll()
			return
		}
	}
}
