package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrGenerationTimeout marks a generation call that ran past its deadline.
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrGenerationRejected marks any other provider failure.
	ErrGenerationRejected = errors.New("generation rejected")
)

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGenerationTimeout) || errors.Is(err, ErrGenerationRejected) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrGenerationRejected, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
