package jobs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"rhythm/pkg/logx"
)

const maxOutputInError = 512

// execute runs the job's command synchronously on the scheduler goroutine.
// The per-job timeout bounds how long one run can stall the loop.
func (s *Service) execute(def *jobDef) error {
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, def.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, def.command[0], def.command[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timed out after %s", def.timeout)
		}
		if msg := trimOutput(out); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}

	if len(out) > 0 && s.log.Enabled(logx.LevelTrace) {
		s.log.Trace("job output", logx.String("job", def.name), logx.String("output", trimOutput(out)))
	}
	return nil
}

func trimOutput(out []byte) string {
	msg := strings.TrimSpace(string(out))
	if len(msg) > maxOutputInError {
		msg = msg[:maxOutputInError] + "..."
	}
	return msg
}
