package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"nil is ok", nil, ClassOK},
		{
			"flood wait is rate limited",
			tele.FloodError{RetryAfter: 14},
			ClassRateLimited,
		},
		{
			"forbidden is permission denied",
			&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
			ClassPermissionDenied,
		},
		{
			"unauthorized is permission denied",
			&tele.Error{Code: 401, Description: "Unauthorized"},
			ClassPermissionDenied,
		},
		{
			"chat not found is not found",
			&tele.Error{Code: 400, Description: "Bad Request: chat not found"},
			ClassNotFound,
		},
		{
			"404 is not found",
			&tele.Error{Code: 404, Description: "Not Found"},
			ClassNotFound,
		},
		{
			"429 is rate limited",
			&tele.Error{Code: 429, Description: "Too Many Requests"},
			ClassRateLimited,
		},
		{
			"5xx is transient",
			&tele.Error{Code: 502, Description: "Bad Gateway"},
			ClassTransient,
		},
		{
			"other 400 is unknown",
			&tele.Error{Code: 400, Description: "Bad Request: message is too long"},
			ClassUnknown,
		},
		{
			"bad target id is not found",
			fmt.Errorf("%w: %q", errInvalidTarget, "abc"),
			ClassNotFound,
		},
		{"deadline exceeded is transient", context.DeadlineExceeded, ClassTransient},
		{"net timeout is transient", fakeNetError{timeout: true}, ClassTransient},
		{"net refusal is transient", fakeNetError{}, ClassTransient},
		{
			"wrapped api error still classified",
			fmt.Errorf("send: %w", &tele.Error{Code: 403, Description: "Forbidden"}),
			ClassPermissionDenied,
		},
		{"plain error is unknown", errors.New("boom"), ClassUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v): expected %v, got %v", tc.err, tc.want, got)
			}
		})
	}
}

func TestClassRetryable(t *testing.T) {
	t.Parallel()

	retryable := []Class{ClassRateLimited, ClassTransient, ClassUnknown}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Fatalf("expected %v to be retryable", c)
		}
	}

	terminal := []Class{ClassOK, ClassNotFound, ClassPermissionDenied}
	for _, c := range terminal {
		if c.Retryable() {
			t.Fatalf("expected %v not to be retryable", c)
		}
	}
}
