package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/pongnet/internal/rtc"
	"github.com/1ureka/pongnet/internal/session"
	"github.com/1ureka/pongnet/internal/util"
)

// attachConsole prints every inbound message of s to out. It must run before
// s is started so the host's greetings are not missed.
func attachConsole(s session.Session, out io.Writer) {
	var mu sync.Mutex
	show := func(m rtc.Message) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "[%s] %s\n", m.Ordering, m.Data)
	}
	d := s.Channels().Dispatcher()
	d.Register(rtc.Ordered, show)
	d.Register(rtc.Unordered, show)
}

// converse waits for s to connect, then sends each line of in on the ordered
// channel. It returns when the input ends, the session ends or ctx is
// cancelled.
func converse(ctx context.Context, s session.Session, in io.Reader, statsInterval time.Duration) error {
	if err := session.WaitConnected(ctx, s); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := session.WaitChannels(ctx, s, ChannelTimeout); err != nil {
		return fmt.Errorf("data channels did not open: %w", err)
	}
	util.LogInfo("connected to %q", s.RemoteName())

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	util.StartStatsReporter(statsCtx, s.Stats(), statsInterval)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-statsCtx.Done():
				return
			}
		}
	}()

	ordered := s.Channels().Get(rtc.Ordered)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := ordered.SendText(ctx, line); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}
		case <-s.Done():
			if err := s.Err(); err != nil {
				return err
			}
			return nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
