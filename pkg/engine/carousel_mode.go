package engine

import (
	"fmt"

	"github.com/germanamz/playfield/pkg/carousel"
)

// carouselMode binds configured events to a carousel.Engine for the lifetime
// of each activation.
type carouselMode struct {
	name   string
	cfg    CarouselConfig
	eng    *Engine
	wheel  *carousel.Engine
	unbind []func()
	stop   func()
}

func newCarouselMode(e *Engine, mc ModeConfig) (Mode, error) {
	if mc.Carousel == nil {
		return nil, fmt.Errorf("engine: mode %q: carousel settings are required", mc.Name)
	}
	cc := *mc.Carousel

	items := make([]carousel.Item, len(cc.Items))
	for i, it := range cc.Items {
		items[i] = carousel.Item{
			Name:      it.Name,
			Condition: it.Condition,
			Metadata:  it.Metadata,
		}
	}

	cfg := carousel.Config{
		Name:             mc.Name,
		Items:            items,
		HoldUntilRelease: cc.HoldUntilRelease,
		RememberPosition: cc.RememberPosition,
	}
	if cc.Cancel != nil {
		cfg.Cancel = carousel.CancelConfig{
			Sources:      cc.Cancel.Switches,
			Quorum:       cc.Cancel.Quorum,
			Event:        cc.Cancel.Event,
			ReleaseEvent: cc.Cancel.ReleaseEvent,
		}
	}

	wheel, err := carousel.New(cfg, e.eval, e.events, carousel.WithLogger(e.log))
	if err != nil {
		return nil, fmt.Errorf("engine: mode %q: %w", mc.Name, err)
	}

	return &carouselMode{
		name:  mc.Name,
		cfg:   cc,
		eng:   e,
		wheel: wheel,
	}, nil
}

func (m *carouselMode) Name() string { return m.name }

// Carousel exposes the underlying engine for inspection.
func (m *carouselMode) Carousel() *carousel.Engine { return m.wheel }

func (m *carouselMode) Start(a Activation) (bool, error) {
	started, err := m.wheel.Start(m.eng.Snapshot())
	if err != nil || !started {
		return false, err
	}

	m.stop = a.Stop
	m.bind()

	return true, nil
}

func (m *carouselMode) Stop() {
	for _, remove := range m.unbind {
		remove()
	}
	m.unbind = nil
	m.wheel.Stop()
}

// bind registers the event handlers. Navigation is bound before switch
// edges so an input that both moves and releases the cancel block is seen as
// a move first, while the block still holds.
func (m *carouselMode) bind() {
	bus := m.eng.events
	on := func(name string, h Handler) {
		m.unbind = append(m.unbind, bus.On(name, h))
	}

	for _, b := range m.cfg.NextItemEvents {
		step := b.Step
		on(b.Event, func(Event) { m.wheel.Advance(carousel.Forward, step) })
	}
	for _, b := range m.cfg.PreviousItemEvents {
		step := b.Step
		on(b.Event, func(Event) { m.wheel.Advance(carousel.Backward, step) })
	}
	for _, ev := range m.cfg.SelectItemEvents {
		on(ev, func(Event) {
			if _, ok := m.wheel.Select(); ok && m.stop != nil {
				m.stop()
			}
		})
	}
	for _, ev := range m.cfg.BlockEvents {
		on(ev, func(Event) { m.wheel.Block() })
	}
	for _, ev := range m.cfg.ReleaseEvents {
		on(ev, func(Event) { m.wheel.Release() })
	}

	if m.cfg.Cancel != nil {
		for _, sw := range m.cfg.Cancel.Switches {
			on(sw+"_active", func(Event) { m.wheel.Edge(sw, true) })
			on(sw+"_inactive", func(Event) { m.wheel.Edge(sw, false) })
		}
	}
}
