package quotes

import (
	"context"

	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// Broadcaster is the part of Hub the distributor needs.
type Broadcaster interface {
	Broadcast(topic Topic, data any)
}

// Distributor publishes the market snapshot and top movers.
type Distributor struct {
	instruments services.InstrumentServicer
	out         Broadcaster
	moversLimit int
}

// NewDistributor creates a Distributor that publishes to out.
func NewDistributor(instruments services.InstrumentServicer, out Broadcaster, moversLimit int) *Distributor {
	if moversLimit <= 0 {
		moversLimit = 10
	}
	return &Distributor{instruments: instruments, out: out, moversLimit: moversLimit}
}

// Publish reads the active instruments once and broadcasts both the full
// snapshot and the movers derived from it, so the two always agree.
func (d *Distributor) Publish(ctx context.Context) error {
	active, err := d.instruments.ListActive(ctx)
	if err != nil {
		return err
	}

	d.out.Broadcast(TopicSnapshot, services.NewQuotes(active))

	services.SortByMovement(active)
	if len(active) > d.moversLimit {
		active = active[:d.moversLimit]
	}
	d.out.Broadcast(TopicMovers, services.NewQuotes(active))
	return nil
}
