package swap_common

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func WaitInterrupted(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s := <-c:
		return fmt.Errorf("interrupted with signal: %v", s)
	}
}
