package provision

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()"
	usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	usernameLetters  = "abcdefghijklmnopqrstuvwxyz"

	minPasswordLength = 5
	maxPasswordLength = 14

	maxUsernameLength = 8
	minUsernameLength = 5
)

// Rand is the randomness source for generated credentials.
type Rand interface {
	IntN(n int) int
}

type runtimeRand struct{}

func (runtimeRand) IntN(n int) int { return rand.IntN(n) }

// GeneratePassword returns a password whose length is drawn from
// [max(minLen,5), min(maxLen,14)]. An inverted range collapses to the lower bound.
func GeneratePassword(r Rand, minLen, maxLen int) string {
	if r == nil {
		r = runtimeRand{}
	}
	lo := max(minLen, minPasswordLength)
	hi := min(maxLen, maxPasswordLength)
	if hi < lo {
		hi = lo
	}
	n := lo + r.IntN(hi-lo+1)
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(passwordAlphabet[r.IntN(len(passwordAlphabet))])
	}
	return b.String()
}

// BaseUsername derives the first username candidate from domain:
// lowercase [a-z0-9] only, no leading digits, padded to 8 when shorter
// than 5, truncated to 8.
func BaseUsername(r Rand, domain string) string {
	if r == nil {
		r = runtimeRand{}
	}
	var b strings.Builder
	for _, c := range strings.ToLower(domain) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	name := strings.TrimLeft(b.String(), "0123456789")
	if len(name) < minUsernameLength {
		var pad strings.Builder
		pad.WriteString(name)
		for pad.Len() < maxUsernameLength {
			if pad.Len() == 0 {
				pad.WriteByte(usernameLetters[r.IntN(len(usernameLetters))])
				continue
			}
			pad.WriteByte(usernameAlphabet[r.IntN(len(usernameAlphabet))])
		}
		name = pad.String()
	}
	if len(name) > maxUsernameLength {
		name = name[:maxUsernameLength]
	}
	return name
}

// usernameCandidate returns the n-th probe: the base with its tail replaced by n.
func usernameCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	suffix := strconv.Itoa(n)
	keep := min(len(base), maxUsernameLength-len(suffix))
	return base[:keep] + suffix
}

// Reserver claims a username across replicas so two concurrent creates do not
// pick the same free candidate.
type Reserver interface {
	ReserveUsername(ctx context.Context, host, username string) (bool, error)
}

// GenerateUsername derives a username from domain and probes the panel until
// it finds one that does not exist yet.
func (p *Provisioner) GenerateUsername(ctx context.Context, domain string) (string, error) {
	base := BaseUsername(p.rand, domain)
	for n := 0; n <= p.opts.UsernameProbes; n++ {
		candidate := usernameCandidate(base, n)
		taken, err := p.usernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		if p.opts.Reserver != nil {
			ok, err := p.opts.Reserver.ReserveUsername(ctx, p.host, candidate)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
		}
		return candidate, nil
	}
	return "", ErrUsernameExhausted
}

// usernameTaken treats any failed lookup as "free": the panel reports unknown
// users with a non-JSON body, which is indistinguishable from other rejections.
// Cancellation is the one failure that stops probing.
func (p *Provisioner) usernameTaken(ctx context.Context, username string) (bool, error) {
	if _, err := p.GetUsage(ctx, username); err == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}
