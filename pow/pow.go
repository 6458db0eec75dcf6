// Package pow implements NIP-13 proof of work, the search for a nonce tag that
// gives an event id a minimum number of leading zero bits.
//
// The search is always bounded, by an attempt budget, a wall clock budget and
// the caller's context, whichever runs out first.
package pow

import (
	"errors"
	"math/bits"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"keybunker.lol/context"
	"keybunker.lol/errorf"
	"keybunker.lol/event"
	"keybunker.lol/hex"
	"keybunker.lol/log"
	"keybunker.lol/tags"
)

// MaxDifficulty is the number of bits in an event id.
const MaxDifficulty = 256

var (
	// ErrBudgetExhausted is returned when the attempt budget runs out before a
	// nonce is found.
	ErrBudgetExhausted = errors.New("proof of work attempt budget exhausted")
	// ErrTimeout is returned when the wall clock budget runs out.
	ErrTimeout = errors.New("proof of work timed out")
	// ErrDifficulty is returned for a difficulty outside 0 to MaxDifficulty.
	ErrDifficulty = errors.New("proof of work difficulty out of range")
)

// Budget bounds a nonce search.
type Budget struct {
	// MaxAttempts is the total number of hashes tried across all workers, zero
	// means DefaultBudget.MaxAttempts.
	MaxAttempts uint64
	// Timeout is the wall clock limit, zero means DefaultBudget.Timeout.
	Timeout time.Duration
	// Workers is the number of concurrent searchers, zero means one per CPU.
	Workers int
}

// DefaultBudget is about a second or two of hashing on a laptop.
var DefaultBudget = Budget{MaxAttempts: 1 << 22, Timeout: 10 * time.Second}

func (b Budget) normalized() Budget {
	if b.MaxAttempts == 0 {
		b.MaxAttempts = DefaultBudget.MaxAttempts
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultBudget.Timeout
	}
	if b.Workers <= 0 {
		b.Workers = runtime.NumCPU()
	}
	return b
}

// LeadingZeroBits counts the leading zero bits of a raw hash.
func LeadingZeroBits(b []byte) (n int) {
	for _, c := range b {
		if c == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(c)
		break
	}
	return
}

// CountLeadingZeroBits counts the leading zero bits of a hex encoded hash.
// Decoding stops at the first character that is not hex.
func CountLeadingZeroBits(h string) (n int) {
	for i := 0; i < len(h); i++ {
		var nibble byte
		switch c := h[i]; {
		case c >= '0' && c <= '9':
			nibble = c - '0'
		case c >= 'a' && c <= 'f':
			nibble = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			nibble = c - 'A' + 10
		default:
			return
		}
		if nibble == 0 {
			n += 4
			continue
		}
		n += bits.LeadingZeros8(nibble) - 4
		return
	}
	return
}

// NonceTag is the NIP-13 tag committing to a nonce and the target difficulty.
func NonceTag(nonce uint64, difficulty int) tags.Tag {
	return tags.New("nonce", strconv.FormatUint(nonce, 10), strconv.Itoa(difficulty))
}

// Generate mines the nonce tag of ev until its id has at least difficulty
// leading zero bits, then sets ev.Tags and ev.ID. The pubkey, created_at, kind
// and content must be final before calling. A difficulty of zero sets the
// nonce to "0" without searching.
//
// On error ev is left unchanged.
func Generate(c context.T, ev *event.T, difficulty int, budget Budget) (attempts uint64, err error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		err = errorf.D("%w: %d", ErrDifficulty, difficulty)
		return
	}
	if difficulty == 0 {
		ev.Tags = ev.Tags.Clone().Set(NonceTag(0, 0))
		ev.ID = ev.GetID()
		attempts = 1
		return
	}
	budget = budget.normalized()
	ctx, cancel := context.Timeout(c, budget.Timeout)
	defer cancel()
	var (
		counter atomic.Uint64
		found   atomic.Bool
		result  *event.T
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := range budget.Workers {
		g.Go(func() (err error) {
			local := ev.Clone()
			local.Tags = local.Tags.Clone()
			for nonce := uint64(w); ; nonce += uint64(budget.Workers) {
				if found.Load() {
					return
				}
				if err = gctx.Err(); err != nil {
					return
				}
				if counter.Inc() > budget.MaxAttempts {
					return ErrBudgetExhausted
				}
				local.Tags = local.Tags.Set(NonceTag(nonce, difficulty))
				id := local.GetIDBytes()
				if LeadingZeroBits(id) >= difficulty {
					if found.CompareAndSwap(false, true) {
						local.ID = hex.Enc(id)
						result = local
					}
					return errFound
				}
			}
		})
	}
	err = g.Wait()
	attempts = counter.Load()
	if found.Load() {
		err = nil
		ev.Tags, ev.ID = result.Tags, result.ID
		log.D.F("found difficulty %d nonce after %d attempts", difficulty, attempts)
		return
	}
	switch {
	case errors.Is(err, ErrBudgetExhausted):
		err = errorf.D("%w after %d attempts", ErrBudgetExhausted, attempts)
	case errors.Is(err, context.DeadlineExceeded) && c.Err() == nil:
		err = errorf.D("%w after %v", ErrTimeout, budget.Timeout)
	case err == nil:
		err = ErrBudgetExhausted
	}
	return
}

// errFound stops the other workers through the errgroup context.
var errFound = errors.New("found")
