package websocket

import (
	"time"

	"golang.org/x/time/rate"
)

// strikeBurst is how many dropped messages a client may accumulate before
// it is disconnected. Strikes come back at one per second.
const strikeBurst = 5

// inboundLimiter throttles one client. Messages over the rate are dropped;
// a client that keeps pushing runs out of strikes.
type inboundLimiter struct {
	messages *rate.Limiter
	strikes  *rate.Limiter
}

func newInboundLimiter(perSecond int) *inboundLimiter {
	return &inboundLimiter{
		messages: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		strikes:  rate.NewLimiter(rate.Every(time.Second), strikeBurst),
	}
}

// admit reports whether a message received at now may be processed and,
// when it may not, whether the client has used up its strikes.
func (l *inboundLimiter) admit(now time.Time) (ok, exhausted bool) {
	if l.messages.AllowN(now, 1) {
		return true, false
	}
	return false, !l.strikes.AllowN(now, 1)
}
