// Package notify holds authcore.Notifier implementations.
package notify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
)

// Func adapts a plain function to authcore.Notifier.
type Func func(ctx context.Context, destination, code string, purpose authcore.CodePurpose) error

// SendCode calls f.
func (f Func) SendCode(ctx context.Context, destination, code string, purpose authcore.CodePurpose) error {
	if f == nil {
		return errors.New("notify: nil func")
	}
	return f(ctx, destination, code, purpose)
}

// LogNotifier records that a code was sent without delivering it. It is
// meant for development and the CLI load test. The code itself is never
// logged.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) SendCode(_ context.Context, destination, code string, purpose authcore.CodePurpose) error {
	n.logger.Info("code dispatched",
		zap.String("destination", Mask(destination)),
		zap.String("purpose", string(purpose)),
		zap.Int("digits", len(code)),
	)
	return nil
}

// Mask hides most of an address: "user@example.com" becomes
// "u***@example.com" and "+15550100" becomes "***0100".
func Mask(destination string) string {
	if at := strings.LastIndex(destination, "@"); at > 0 {
		return destination[:1] + "***" + destination[at:]
	}
	if len(destination) <= 4 {
		return "***"
	}
	return "***" + destination[len(destination)-4:]
}

// Fanout delivers through every notifier in order and stops at the first
// error.
type Fanout []authcore.Notifier

func (f Fanout) SendCode(ctx context.Context, destination, code string, purpose authcore.CodePurpose) error {
	for _, n := range f {
		if err := n.SendCode(ctx, destination, code, purpose); err != nil {
			return err
		}
	}
	return nil
}
