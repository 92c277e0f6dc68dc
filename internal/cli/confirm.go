package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/retirectl/retirectl/internal/orchestrator"
)

// promptConfirmer is the interactive batch gate: one yes/no question for the
// whole run, asked before any device leaves PENDING.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

var _ orchestrator.Confirmer = (*promptConfirmer)(nil)

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: in, out: out}
}

func (p *promptConfirmer) Confirm(ctx context.Context, deviceCount int) (bool, error) {
	fmt.Fprintf(p.out, "About to retire %d device(s): remote wipe and registry teardown are irreversible. Continue? [y/N]: ", deviceCount)

	answerCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		answerCh <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errCh:
		return false, fmt.Errorf("reading confirmation: %w", err)
	case answer := <-answerCh:
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}
