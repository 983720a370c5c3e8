package platform

import (
	"context"
	"errors"
	"net"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Class buckets a send or resolve error by how the delivery engine
// should react to it.
type Class int

const (
	ClassOK Class = iota
	ClassNotFound
	ClassPermissionDenied
	ClassRateLimited
	ClassTransient
	ClassUnknown
)

// Retryable reports whether the failure may succeed on a later
// attempt. Unknown errors are retried, matching how generic send
// failures are handled elsewhere in the pipeline.
func (c Class) Retryable() bool {
	switch c {
	case ClassRateLimited, ClassTransient, ClassUnknown:
		return true
	}
	return false
}

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "OK"
	case ClassNotFound:
		return "TargetNotFound"
	case ClassPermissionDenied:
		return "PermissionDenied"
	case ClassRateLimited:
		return "RateLimited"
	case ClassTransient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// Classify maps a Telegram API error onto a Class. Flood waits are
// rate limits; 401/403 responses mean the bot cannot deliver to that
// target at all; timeouts and connectivity failures are transient.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return ClassRateLimited
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return ClassPermissionDenied
		case apiErr.Code == 404:
			return ClassNotFound
		case apiErr.Code == 429:
			return ClassRateLimited
		case apiErr.Code >= 500:
			return ClassTransient
		case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Description), "not found"):
			return ClassNotFound
		default:
			return ClassUnknown
		}
	}

	if errors.Is(err, errInvalidTarget) {
		return ClassNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassUnknown
}
