package goNoPass

import (
	"context"
	"errors"

	"github.com/MrEthical07/goNoPass/challenge"
)

// ChallengeTracker optionally pairs challenge tokens with the email they were
// issued for, outside the Client. See challenge.RedisStore.
//
// Check returns nil when token was recorded for email. Backend failures
// should wrap ErrChallengeTrackerUnavailable so they are not reported as a
// mismatch.
type ChallengeTracker interface {
	Record(ctx context.Context, email, token string) error
	Check(ctx context.Context, email, token string) error
	Forget(ctx context.Context, token string) error
}

var _ ChallengeTracker = (*challenge.RedisStore)(nil)

func isTrackerUnavailable(err error) bool {
	return errors.Is(err, ErrChallengeTrackerUnavailable) || errors.Is(err, challenge.ErrUnavailable)
}
