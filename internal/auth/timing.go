package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// RejectionPadding holds rejected credential responses until a floor has
// elapsed, so a malformed secret answers no faster than one that reached bcrypt.
type RejectionPadding struct {
	floor  time.Duration
	jitter time.Duration
	sleep  func(time.Duration)
}

// NewRejectionPadding creates a padding of floor plus up to jitter.
// A zero floor and jitter disables padding.
func NewRejectionPadding(floor, jitter time.Duration) *RejectionPadding {
	return &RejectionPadding{floor: floor, jitter: jitter, sleep: time.Sleep}
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// target returns the floor plus a random share of the jitter
func (p *RejectionPadding) target() time.Duration {
	d := p.floor
	if p.jitter > 0 {
		if n, err := cryptoRandIntn(int64(p.jitter)); err == nil {
			d += time.Duration(n)
		}
	}
	return d
}

// WaitFrom sleeps until the padded target has passed since start
func (p *RejectionPadding) WaitFrom(start time.Time) {
	if p == nil || (p.floor <= 0 && p.jitter <= 0) {
		return
	}

	target := p.target()
	if elapsed := time.Since(start); elapsed < target {
		p.sleep(target - elapsed)
	}
}
