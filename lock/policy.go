package lock

import "time"

// Policy decides how Acquire reacts to a busy resource.
type Policy struct {
	// Retry requests the lease up to Attempts times, Interval apart.
	// Otherwise a single request is made and a conflict is returned at once.
	Retry    bool
	Attempts int
	Interval time.Duration
	// LeaseDuration is the requested lease length.
	LeaseDuration time.Duration
	// Timeout optionally bounds the acquisition. Expiry is reported as
	// errors.TimeoutError.
	Timeout time.Duration
}

// Retry returns a retry policy.
func Retry(attempts int, interval, lease time.Duration) Policy {
	return Policy{
		Retry:         true,
		Attempts:      attempts,
		Interval:      interval,
		LeaseDuration: lease,
	}
}

// FailFast returns a single attempt policy holding the lease for lease.
func FailFast(lease time.Duration) Policy {
	return Policy{
		Attempts:      1,
		LeaseDuration: lease,
	}
}

// WithTimeout returns a copy of p bounded by d.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

func (p Policy) attempts() uint {
	if !p.Retry || p.Attempts < 1 {
		return 1
	}
	return uint(p.Attempts)
}

func (p Policy) leaseDuration() time.Duration {
	if p.LeaseDuration > 0 {
		return p.LeaseDuration
	}
	if p.Retry {
		return 15 * time.Second
	}
	return 60 * time.Second
}
