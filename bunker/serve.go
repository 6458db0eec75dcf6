package bunker

import (
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"keybunker.lol/chk"
	"keybunker.lol/context"
	"keybunker.lol/errorf"
	"keybunker.lol/event"
	"keybunker.lol/keys"
	"keybunker.lol/log"
)

// BunkerURL is the bunker:// connection token for this signer, carrying the
// configured relays and secret.
func (s *Signer) BunkerURL() string {
	q := url.Values{}
	for _, r := range s.opts.relays {
		q.Add("relay", r)
	}
	if s.opts.secret != "" {
		q.Set("secret", s.opts.secret)
	}
	u := url.URL{Scheme: "bunker", Host: s.PublicKey(), RawQuery: q.Encode()}
	return u.String()
}

// IsValidBunkerURL says whether input is a bunker url with a public key and at
// least one relay.
func IsValidBunkerURL(input string) bool {
	p, err := url.Parse(input)
	if err != nil {
		return false
	}
	if p.Scheme != "bunker" {
		return false
	}
	if !keys.IsValidPublicKey(p.Host) {
		return false
	}
	if !strings.Contains(p.RawQuery, "relay=") {
		return false
	}
	return true
}

// ParseBunkerURL splits a bunker url into the signer key, relays and secret.
func ParseBunkerURL(input string) (pubkey string, relays []string, secret string, err error) {
	var p *url.URL
	if p, err = url.Parse(input); chk.D(err) {
		return
	}
	if p.Scheme != "bunker" {
		err = errorf.E("wrong scheme '%s', must be bunker://", p.Scheme)
		return
	}
	if !keys.IsValidPublicKey(p.Host) {
		err = errorf.E("'%s' is not a valid public key hex", p.Host)
		return
	}
	q := p.Query()
	pubkey, relays, secret = p.Host, q["relay"], q.Get("secret")
	return
}

// Serve answers request events from in until it closes or c is done, handing
// each response to out. At most the serve limit of events are in flight. Events
// that cannot be answered are logged and dropped.
func (s *Signer) Serve(c context.T, in <-chan *event.T, out func(context.T, *event.T) error) (err error) {
	g, gc := errgroup.WithContext(c)
	if s.opts.serveLimit > 0 {
		g.SetLimit(s.opts.serveLimit)
	}
	defer func() {
		if e := g.Wait(); err == nil {
			err = e
		}
	}()
	for {
		select {
		case <-gc.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			g.Go(func() error {
				resp, e := s.HandleEvent(gc, ev)
				if e != nil {
					log.D.F("dropping event %s: %v", ev.ID, e)
					return nil
				}
				if e = out(gc, resp); chk.E(e) {
					log.W.F("failed to deliver response to %s: %v", ev.Pubkey, e)
				}
				return nil
			})
		}
	}
}

// Run sweeps idle sessions until c is done.
func (s *Signer) Run(c context.T) {
	log.I.F("signer %s sweeping sessions idle for %v every %v",
		s.PublicKey(), s.opts.maxAge, s.opts.cleanupInterval)
	s.store.Sweep(c, s.opts.cleanupInterval, s.opts.maxAge)
}
