package rpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/starknet-replay/orchestrator/internal/rerr"
)

// classify turns a raw transport error into a target-down classified
// error when it looks like connection refused / reset / DNS failure /
// fetch-failed, and leaves everything else as a plain (retryable)
// transport error, per spec §4.3.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*rerr.Error); ok {
		return err
	}
	if isContextErr(err) {
		return err
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return rerr.TargetDown(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return rerr.TargetDown(err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return rerr.TargetDown(err)
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"eof",
		"fetch failed",
		"failed to fetch",
		"i/o timeout",
	} {
		if strings.Contains(msg, needle) {
			return rerr.TargetDown(err)
		}
	}

	return err
}

// isContextErr reports whether err is (or wraps) context cancellation,
// which should never be reclassified as target-down.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
