package observer

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Vibrator interface {
	Vibrate(ctx context.Context, pattern []time.Duration) error
}

type SoundPlayer interface {
	Play(ctx context.Context) error
}

var DefaultVibration = []time.Duration{200 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}

// Alerter fans one alert out to whichever channels are configured. Every
// channel is best-effort: failures are logged and otherwise ignored.
type Alerter struct {
	Notifier Notifier
	Vibrator Vibrator
	Sound    SoundPlayer
	Pattern  []time.Duration
}

func (a Alerter) Alert(ctx context.Context, text string) {
	if a.Notifier != nil {
		if err := a.Notifier.Notify(ctx, text); err != nil {
			log.Printf("alert notify error: %v", err)
		}
	}
	if a.Vibrator != nil {
		pattern := a.Pattern
		if len(pattern) == 0 {
			pattern = DefaultVibration
		}
		if err := a.Vibrator.Vibrate(ctx, pattern); err != nil {
			log.Printf("alert vibrate error: %v", err)
		}
	}
	if a.Sound != nil {
		if err := a.Sound.Play(ctx); err != nil {
			log.Printf("alert sound error: %v", err)
		}
	}
}

// WriterNotifier prints alerts as lines, e.g. to a terminal.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(ctx context.Context, text string) error {
	_, err := fmt.Fprintf(n.W, "*** %s ***\n", text)
	return err
}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Play(ctx context.Context) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}
