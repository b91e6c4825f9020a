package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// process wraps an ffmpeg-family child that streams raw PCM.
type process struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	waitErr chan error

	stopOnce sync.Once
	stopErr  error
}

// startProcess runs cmd and, when settle is positive, fails if the child
// exits before settle elapses.
func startProcess(cmd *exec.Cmd, settle time.Duration) (*process, error) {
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	p := &process{cmd: cmd, stderr: stderr, waitErr: make(chan error, 1)}
	go func() {
		p.waitErr <- cmd.Wait()
		close(p.waitErr)
	}()

	if settle <= 0 {
		return p, nil
	}
	select {
	case err := <-p.waitErr:
		if err != nil {
			return nil, fmt.Errorf("%s exited before audio started: %w: %s", cmd.Path, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s exited before audio started", cmd.Path)
	case <-time.After(settle):
		return p, nil
	}
}

// wait blocks until the child exits or done closes.
func (p *process) wait(done <-chan struct{}) (bool, error) {
	select {
	case err, ok := <-p.waitErr:
		if !ok {
			return true, nil
		}
		return true, p.describe(ignoreExit(err))
	case <-done:
		return false, nil
	}
}

// stop interrupts the child and kills it after grace.
func (p *process) stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(os.Interrupt)
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = ignoreExit(err)
			}
		case <-timer.C:
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Kill()
			}
			if err, ok := <-p.waitErr; ok {
				p.stopErr = ignoreExit(err)
			}
		}
		p.stopErr = p.describe(p.stopErr)
	})
	return p.stopErr
}

func (p *process) describe(err error) error {
	if err == nil || p.stderr.Len() == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, strings.TrimSpace(p.stderr.String()))
}

// ignoreExit treats a non-zero exit as a normal stop; signalled ffmpeg
// children rarely exit zero.
func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
