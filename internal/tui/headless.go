package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
	"github.com/matheus3301/haptalk/internal/tui/model"
)

// RunHeadless is the line-mode client: each input line is sent (or run as a
// command), and messages from other senders are printed as they arrive.
// It returns when in is exhausted, /quit is read, or ctx ends.
func RunHeadless(ctx context.Context, core model.Core, in io.Reader, out io.Writer) error {
	vm := model.NewViewModel(core)
	events, unsub := vm.Watch(64)
	defer unsub()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	if err := vm.Refresh(); err != nil {
		return err
	}
	printed := make(map[int64]bool)
	for _, m := range vm.GetMessages() {
		printed[m.ID] = true
		_, _ = fmt.Fprintln(out, model.Plain(m, time.Now()))
	}
	_, _ = fmt.Fprintf(out, "* %s as %s\n", vm.GetState(), core.SessionID())

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if cmd, isCmd := ParseCommand(line); isCmd {
				switch cmd.Name {
				case CmdQuit:
					return nil
				case CmdRetry:
					n, err := vm.RetryFailed(ctx)
					if err != nil {
						_, _ = fmt.Fprintf(out, "! retry: %v\n", err)
					} else {
						_, _ = fmt.Fprintf(out, "* resent %d\n", n)
					}
				default:
					_, _ = fmt.Fprintf(out, "! unknown command /%s\n", cmd.Name)
				}
				continue
			}
			if err := vm.Send(ctx, Unescape(line)); err != nil {
				_, _ = fmt.Fprintf(out, "! send: %v\n", err)
			} else if flash := vm.Flash.Take(); flash != "" {
				_, _ = fmt.Fprintf(out, "* %s\n", flash)
			}

		case evt := <-events:
			switch evt.Kind {
			case bus.KindStateChanged:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					_, _ = fmt.Fprintf(out, "* %s\n", change.To)
				}
			case bus.KindMessageInserted:
				if err := vm.Refresh(); err != nil {
					_, _ = fmt.Fprintf(out, "! load: %v\n", err)
					continue
				}
				for _, m := range vm.GetMessages() {
					if printed[m.ID] || m.IsMine {
						continue
					}
					printed[m.ID] = true
					_, _ = fmt.Fprintln(out, model.Plain(m, time.Now()))
				}
			case bus.KindMessageStatusChange:
				if ref, ok := evt.Payload.(bus.MessageRef); ok && ref.Status == string(store.StatusFailed) {
					_, _ = fmt.Fprintf(out, "! message %d failed, /retry to resend\n", ref.ID)
				}
			}
		}
	}
}
