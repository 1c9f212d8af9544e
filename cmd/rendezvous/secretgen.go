package main

import (
	"fmt"
	"time"
)

// secretGen produces the rolling rendezvous secret from spec.md §6/§8
// scenario 6: "rendezvous-<floor(unix_epoch_seconds/300)>-<counter>".
// The counter resets to 0 whenever the 300-second time slot advances.
type secretGen struct {
	base string
	now  func() time.Time

	haveSlot bool
	slot     int64
	counter  int
}

func newSecretGen(base string) *secretGen {
	return &secretGen{base: base, now: time.Now}
}

// secret advances the generator and returns the next rolling secret.
func (g *secretGen) secret() []byte {
	slot := g.now().Unix() / 300
	if !g.haveSlot || slot != g.slot {
		g.slot = slot
		g.counter = 0
		g.haveSlot = true
	}

	s := fmt.Sprintf("%s-%d-%d", g.base, g.slot, g.counter)
	g.counter++
	return []byte(s)
}
