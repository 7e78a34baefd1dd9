package session

import "time"

// DefaultReconnectDelay is the wait before a recoverable disconnect leads to
// a recreation attempt.
const DefaultReconnectDelay = 5 * time.Second

// defaultRecoverableReasons are disconnect reasons that signify a
// recoverable navigation/session-loss condition.
var defaultRecoverableReasons = []string{"NAVIGATION", "NO_AUTH"}

// ReconnectPolicy maps a disconnect reason to a retry/no-retry outcome and a
// delay. Recoverable reasons get a single delayed recreation; everything
// else leaves the session absent until an explicit create.
type ReconnectPolicy struct {
	delay       time.Duration
	recoverable map[string]struct{}
}

// NewReconnectPolicy returns a policy with the given delay and recoverable
// reasons. A non-positive delay falls back to DefaultReconnectDelay; an
// empty reason list falls back to the default recoverable set.
func NewReconnectPolicy(delay time.Duration, reasons []string) *ReconnectPolicy {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if len(reasons) == 0 {
		reasons = defaultRecoverableReasons
	}
	set := make(map[string]struct{}, len(reasons))
	for _, r := range reasons {
		set[r] = struct{}{}
	}
	return &ReconnectPolicy{delay: delay, recoverable: set}
}

// ShouldReconnect reports whether a disconnect with the given reason should
// schedule a recreation.
func (p *ReconnectPolicy) ShouldReconnect(reason string) bool {
	_, ok := p.recoverable[reason]
	return ok
}

// Delay returns the wait before the scheduled recreation fires.
func (p *ReconnectPolicy) Delay() time.Duration {
	return p.delay
}
