package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"dropin/pkg/platform/sentinel"
)

// Classify maps transport failures to ErrUnavailable. Context errors pass
// through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	msg := err.Error()
	for _, prefix := range []string{"LOADING", "READONLY", "CLUSTERDOWN", "MASTERDOWN"} {
		if strings.HasPrefix(msg, prefix) {
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
