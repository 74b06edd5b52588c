package carousel

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/playfield/pkg/condition"
)

type note struct {
	Name string
	Args map[string]any
}

// recorder is a Sink that keeps every notification in order.
type recorder struct {
	notes []note
}

func (r *recorder) Post(name string, args map[string]any) {
	r.notes = append(r.notes, note{Name: name, Args: args})
}

func (r *recorder) count(name string) int {
	n := 0
	for _, nt := range r.notes {
		if nt.Name == name {
			n++
		}
	}
	return n
}

type highlight struct {
	Item      string
	Direction any
}

// highlights returns the item_highlighted notifications as (item, direction).
func (r *recorder) highlights() []highlight {
	var out []highlight
	for _, nt := range r.notes {
		if nt.Name == EventItemHighlighted {
			out = append(out, highlight{Item: nt.Args["item"].(string), Direction: nt.Args["direction"]})
		}
	}
	return out
}

func (r *recorder) reset() { r.notes = nil }

func items(names ...string) []Item {
	out := make([]Item, len(names))
	for i, n := range names {
		out[i] = Item{Name: n}
	}
	return out
}

func newEngine(t *testing.T, cfg Config, eval condition.Evaluator) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e, err := New(cfg, eval, rec)
	require.NoError(t, err)
	return e, rec
}

func TestEngine_NavigateAndSelect(t *testing.T) {
	e, rec := newEngine(t, Config{Name: "carousel", Items: items("item1", "item2", "item3")}, nil)

	started, err := e.Start(nil)
	require.NoError(t, err)
	require.True(t, started)

	e.Advance(Forward, 1)
	e.Advance(Forward, 1)
	e.Advance(Forward, 1)
	e.Advance(Backward, 1)
	e.Advance(Backward, 1)

	want := []highlight{
		{"item1", nil},
		{"item2", "forwards"},
		{"item3", "forwards"},
		{"item1", "forwards"},
		{"item3", "backwards"},
		{"item2", "backwards"},
	}
	if diff := cmp.Diff(want, rec.highlights()); diff != "" {
		t.Fatalf("highlights mismatch (-want +got):\n%s", diff)
	}

	highlightsBefore := len(rec.highlights())
	item, ok := e.Select()
	require.True(t, ok)
	assert.Equal(t, "item2", item.Name)

	assert.Equal(t, 0, rec.count("carousel_item1_selected"))
	assert.Equal(t, 1, rec.count("carousel_item2_selected"))
	assert.Equal(t, 0, rec.count("carousel_item3_selected"))
	assert.Equal(t, 1, rec.count("carousel_item_selected"))
	assert.False(t, e.State().Active)

	// Selection is terminal for the session.
	e.Advance(Forward, 1)
	_, ok = e.Select()
	assert.False(t, ok)
	assert.Len(t, rec.highlights(), highlightsBefore)
	assert.Equal(t, 1, rec.count("carousel_item2_selected"))
}

func TestEngine_HighlightNotifications(t *testing.T) {
	e, rec := newEngine(t, Config{Name: "awards", Items: items("lock", "jackpot")}, nil)

	_, err := e.Start(nil)
	require.NoError(t, err)
	e.Advance(Forward, 1)

	want := []note{
		{Name: "awards_lock_highlighted", Args: map[string]any{"direction": nil}},
		{Name: "item_highlighted", Args: map[string]any{"carousel": "awards", "item": "lock", "direction": nil}},
		{Name: "awards_jackpot_highlighted", Args: map[string]any{"direction": "forwards"}},
		{Name: "item_highlighted", Args: map[string]any{"carousel": "awards", "item": "jackpot", "direction": "forwards"}},
	}
	if diff := cmp.Diff(want, rec.notes); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MultiStep(t *testing.T) {
	e, rec := newEngine(t, Config{Name: "c", Items: items("a", "b", "c", "d", "e")}, nil)
	_, err := e.Start(nil)
	require.NoError(t, err)

	e.Advance(Backward, 2)
	assert.Equal(t, 3, e.State().Index)

	e.Advance(Forward, 7)
	assert.Equal(t, 0, e.State().Index)

	e.Advance(Forward, 0)
	assert.Equal(t, 1, e.State().Index)
	assert.Equal(t, highlight{"b", "forwards"}, rec.highlights()[len(rec.highlights())-1])
}

func TestEngine_WraparoundClosure(t *testing.T) {
	for n := 1; n <= 6; n++ {
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		e, _ := newEngine(t, Config{Name: "c", Items: items(names...)}, nil)
		_, err := e.Start(nil)
		require.NoError(t, err)

		e.Advance(Forward, 1)
		start := e.State().Index
		for range n {
			e.Advance(Forward, 1)
		}
		assert.Equal(t, start, e.State().Index, "n=%d", n)

		for range n {
			e.Advance(Backward, 1)
		}
		assert.Equal(t, start, e.State().Index, "n=%d backwards", n)
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	for k := 1; k <= 7; k++ {
		e, _ := newEngine(t, Config{Name: "c", Items: items("a", "b", "c", "d", "e")}, nil)
		_, err := e.Start(nil)
		require.NoError(t, err)
		e.Advance(Forward, 2)

		before := e.State().Index
		e.Advance(Forward, k)
		e.Advance(Backward, k)
		assert.Equal(t, before, e.State().Index, "k=%d", k)
	}
}

func TestEngine_EmptyItems(t *testing.T) {
	never := condition.Func(func(string, condition.Snapshot) (bool, error) { return false, nil })
	e, rec := newEngine(t, Config{
		Name:  "conditional_carousel",
		Items: []Item{{Name: "item1", Condition: "x"}, {Name: "item2", Condition: "y"}},
	}, never)

	started, err := e.Start(nil)
	require.NoError(t, err)
	assert.False(t, started)
	assert.False(t, e.State().Active)
	assert.Equal(t, 1, rec.count("conditional_carousel_items_empty"))
	assert.Empty(t, rec.highlights())

	e.Advance(Forward, 1)
	_, ok := e.Select()
	assert.False(t, ok)
	assert.Len(t, rec.notes, 1)
}

func TestEngine_ConditionalMembership(t *testing.T) {
	cfg := Config{
		Name: "conditional_carousel",
		Items: []Item{
			{Name: "item1", Condition: "not current_player.hide_item1"},
			{Name: "item2", Condition: "current_player.show_item2"},
			{Name: "item3", Condition: "machine.player2_score > 0"},
			{Name: "item4", Condition: "current_player.show_item4"},
		},
	}

	tests := []struct {
		name string
		vars condition.Snapshot
		want []string
	}{
		{
			name: "no conditions true",
			vars: condition.Snapshot{condition.ScopeMachine: {"player2_score": 0}},
			want: []string{"item1"},
		},
		{
			name: "player variable",
			vars: condition.Snapshot{
				condition.ScopePlayer:  {"show_item4": true},
				condition.ScopeMachine: {"player2_score": 0},
			},
			want: []string{"item1", "item4"},
		},
		{
			name: "machine variable",
			vars: condition.Snapshot{
				condition.ScopePlayer:  {"show_item4": false},
				condition.ScopeMachine: {"player2_score": 500000},
			},
			want: []string{"item1", "item3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newEngine(t, cfg, condition.NewLua())

			started, err := e.Start(tt.vars)
			require.NoError(t, err)
			require.True(t, started)

			var live []string
			for _, it := range e.Items() {
				live = append(live, it.Name)
			}
			assert.Equal(t, tt.want, live)

			e.Advance(Forward, 1)
			e.Advance(Forward, 1)
			hl := rec.highlights()
			require.Len(t, hl, 3)
			assert.Equal(t, highlight{"item1", nil}, hl[0])
			assert.Equal(t, highlight{tt.want[1%len(tt.want)], "forwards"}, hl[1])
			assert.Equal(t, highlight{"item1", "forwards"}, hl[2])
		})
	}
}

func TestEngine_ConditionsSnapshottedAtStart(t *testing.T) {
	vars := condition.Snapshot{condition.ScopePlayer: {"show_b": true}}
	e, _ := newEngine(t, Config{
		Name:  "c",
		Items: []Item{{Name: "a"}, {Name: "b", Condition: "current_player.show_b"}},
	}, condition.NewLua())

	_, err := e.Start(vars)
	require.NoError(t, err)

	vars[condition.ScopePlayer]["show_b"] = false
	e.Advance(Forward, 1)
	assert.Equal(t, "b", e.State().Item)

	_, err = e.Start(vars)
	require.NoError(t, err)
	assert.Len(t, e.Items(), 1)
}

func TestEngine_ConditionError(t *testing.T) {
	boom := errors.New("boom")
	eval := condition.Func(func(expr string, _ condition.Snapshot) (bool, error) {
		if expr == "bad" {
			return false, boom
		}
		return true, nil
	})
	e, rec := newEngine(t, Config{
		Name:  "c",
		Items: []Item{{Name: "a", Condition: "ok"}, {Name: "b", Condition: "bad"}},
	}, eval)

	started, err := e.Start(nil)
	assert.False(t, started)
	require.ErrorIs(t, err, boom)

	var condErr *ConditionError
	require.ErrorAs(t, err, &condErr)
	assert.Equal(t, "b", condErr.Item)
	assert.Equal(t, "bad", condErr.Expr)
	assert.Contains(t, err.Error(), `condition "bad"`)

	assert.False(t, e.State().Active)
	assert.Empty(t, rec.notes)
}

// flippers drives an engine the way a mode binding does: navigation bound to
// the release of each flipper, and both flippers feeding the cancel votes.
// Navigation runs before the edge is recorded.
type flippers struct {
	e *Engine
}

func (f flippers) press(source string) { f.e.Edge(source, true) }

func (f flippers) release(source string) {
	switch source {
	case "s_flipper_right":
		f.e.Advance(Forward, 1)
	case "s_flipper_left":
		f.e.Advance(Backward, 1)
	}
	f.e.Edge(source, false)
}

func blockingConfig() Config {
	return Config{
		Name:  "blocking_carousel",
		Items: items("item1", "item2", "item3"),
		Cancel: CancelConfig{
			Sources:      []string{"s_flipper_left", "s_flipper_right"},
			Event:        "flipper_cancel",
			ReleaseEvent: "both_flippers_inactive",
		},
	}
}

func TestEngine_CancelProtocol(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	f := flippers{e: e}

	_, err := e.Start(nil)
	require.NoError(t, err)

	f.press("s_flipper_right")
	f.release("s_flipper_right")
	assert.Equal(t, "item2", e.State().Item)
	assert.Equal(t, Forward, e.State().Direction)
	assert.Equal(t, 0, rec.count("flipper_cancel"))

	// Both flippers held: one cancel, block, no movement.
	f.press("s_flipper_right")
	f.press("s_flipper_left")
	assert.Equal(t, 1, rec.count("flipper_cancel"))
	assert.True(t, e.State().Blocked)

	// Releasing one flipper is not enough.
	f.release("s_flipper_right")
	assert.True(t, e.State().Blocked)
	assert.Equal(t, "item2", e.State().Item)
	assert.Equal(t, 0, rec.count("both_flippers_inactive"))

	// Releasing the second one clears the block without moving.
	f.release("s_flipper_left")
	assert.False(t, e.State().Blocked)
	assert.Equal(t, None, e.State().Direction)
	assert.Equal(t, "item2", e.State().Item)
	assert.Equal(t, 1, rec.count("flipper_cancel"))
	assert.Equal(t, 1, rec.count("both_flippers_inactive"))

	f.press("s_flipper_right")
	f.release("s_flipper_right")
	assert.Equal(t, "item3", e.State().Item)

	want := []highlight{
		{"item1", nil},
		{"item2", "forwards"},
		{"item3", "forwards"},
	}
	if diff := cmp.Diff(want, rec.highlights()); diff != "" {
		t.Fatalf("highlights mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_SingleEdgeNeverCancels(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	_, err := e.Start(nil)
	require.NoError(t, err)
	e.Advance(Forward, 1)

	e.Edge("s_flipper_left", true)
	assert.False(t, e.State().Blocked)
	assert.Equal(t, 1, e.State().Index)
	assert.Equal(t, 0, rec.count("flipper_cancel"))

	// Repeated presses of a held source do not add votes.
	e.Edge("s_flipper_left", true)
	assert.False(t, e.State().Blocked)

	// Untracked sources are ignored.
	e.Edge("s_start", true)
	assert.False(t, e.State().Blocked)
}

func TestEngine_CancelPostsOnceWhileHeld(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	_, err := e.Start(nil)
	require.NoError(t, err)

	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_right", true)
	e.Edge("s_flipper_right", false)
	e.Edge("s_flipper_right", true)
	assert.Equal(t, 1, rec.count("flipper_cancel"))

	e.Edge("s_flipper_right", false)
	e.Edge("s_flipper_left", false)
	assert.False(t, e.State().Blocked)

	// A fresh double press cancels again.
	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_right", true)
	assert.Equal(t, 2, rec.count("flipper_cancel"))
}

func TestEngine_RestartClearsBlock(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	f := flippers{e: e}

	_, err := e.Start(nil)
	require.NoError(t, err)
	f.press("s_flipper_right")
	f.release("s_flipper_right")
	e.Block()
	require.True(t, e.State().Blocked)

	e.Stop()
	assert.False(t, e.State().Active)

	rec.reset()
	_, err = e.Start(nil)
	require.NoError(t, err)

	st := e.State()
	assert.False(t, st.Blocked)
	assert.Equal(t, None, st.Direction)
	assert.Equal(t, 0, st.Index)

	f.release("s_flipper_right")
	assert.Equal(t, []highlight{{"item1", nil}, {"item2", "forwards"}}, rec.highlights())
}

func TestEngine_RestartForgetsHeldSources(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	_, err := e.Start(nil)
	require.NoError(t, err)

	e.Edge("s_flipper_left", true)
	_, err = e.Start(nil)
	require.NoError(t, err)

	// Only one press since the restart: no cancel.
	e.Edge("s_flipper_right", true)
	assert.False(t, e.State().Blocked)
	assert.Equal(t, 0, rec.count("flipper_cancel"))
}

func TestEngine_BlockAndRelease(t *testing.T) {
	e, rec := newEngine(t, Config{Name: "c", Items: items("a", "b", "c")}, nil)
	_, err := e.Start(nil)
	require.NoError(t, err)
	e.Advance(Backward, 1)

	e.Block()
	e.Advance(Forward, 1)
	e.Advance(Backward, 1)
	_, ok := e.Select()
	assert.False(t, ok)
	assert.Equal(t, "c", e.State().Item)
	assert.Equal(t, Backward, e.State().Direction)

	e.Release()
	assert.False(t, e.State().Blocked)
	assert.Equal(t, None, e.State().Direction)
	assert.Equal(t, 1, rec.count("c_released"))

	// Releasing twice posts nothing more.
	e.Release()
	assert.Equal(t, 1, rec.count("c_released"))

	item, ok := e.Select()
	require.True(t, ok)
	assert.Equal(t, "c", item.Name)
	assert.Equal(t, 1, rec.count("c_c_selected"))
}

func TestEngine_BlockSurvivesCancelSources(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)
	_, err := e.Start(nil)
	require.NoError(t, err)

	e.Block()

	// A tap of one source, then a full cancel and release, leave it blocked.
	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_left", false)
	assert.True(t, e.State().Blocked)

	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_right", true)
	e.Edge("s_flipper_right", false)
	e.Edge("s_flipper_left", false)
	assert.True(t, e.State().Blocked)
	assert.Equal(t, 1, rec.count("flipper_cancel"))
	assert.Zero(t, rec.count("both_flippers_inactive"))

	e.Advance(Forward, 1)
	assert.Equal(t, "item1", e.State().Item)

	e.Release()
	assert.False(t, e.State().Blocked)
	assert.Equal(t, 1, rec.count("both_flippers_inactive"))

	// Later cancels clear on release of the sources again.
	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_right", true)
	e.Edge("s_flipper_left", false)
	e.Edge("s_flipper_right", false)
	assert.False(t, e.State().Blocked)
	assert.Equal(t, 2, rec.count("both_flippers_inactive"))
}

func TestEngine_HoldUntilRelease(t *testing.T) {
	cfg := blockingConfig()
	cfg.HoldUntilRelease = true
	e, _ := newEngine(t, cfg, nil)
	_, err := e.Start(nil)
	require.NoError(t, err)

	// Navigation on press: the move holds until the button is released.
	e.Advance(Forward, 1)
	e.Edge("s_flipper_right", true)
	assert.True(t, e.State().Blocked)

	e.Advance(Forward, 1)
	assert.Equal(t, "item2", e.State().Item)

	e.Edge("s_flipper_right", false)
	assert.False(t, e.State().Blocked)

	e.Advance(Forward, 1)
	assert.Equal(t, "item3", e.State().Item)
	e.Release()
	assert.False(t, e.State().Blocked)
}

func TestEngine_RememberPosition(t *testing.T) {
	e, rec := newEngine(t, Config{
		Name:             "c",
		Items:            items("a", "b", "c"),
		RememberPosition: true,
	}, nil)

	_, err := e.Start(nil)
	require.NoError(t, err)
	e.Advance(Forward, 2)
	e.Stop()

	rec.reset()
	_, err = e.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "c", e.State().Item)
	assert.Equal(t, []highlight{{"c", nil}}, rec.highlights())
}

func TestEngine_FreshSessionByDefault(t *testing.T) {
	e, _ := newEngine(t, Config{Name: "c", Items: items("a", "b", "c")}, nil)

	_, err := e.Start(nil)
	require.NoError(t, err)
	e.Advance(Forward, 2)
	e.Stop()

	_, err = e.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "a", e.State().Item)
}

func TestEngine_InactiveIgnoresInput(t *testing.T) {
	e, rec := newEngine(t, blockingConfig(), nil)

	e.Advance(Forward, 1)
	e.Edge("s_flipper_left", true)
	e.Edge("s_flipper_right", true)
	e.Block()
	e.Release()
	e.Stop()
	_, ok := e.Select()

	assert.False(t, ok)
	assert.Empty(t, rec.notes)
	assert.Equal(t, State{}, e.State())
}

func TestNew_Validation(t *testing.T) {
	sink := SinkFunc(func(string, map[string]any) {})

	tests := []struct {
		name string
		cfg  Config
		eval condition.Evaluator
		sink Sink
	}{
		{name: "missing name", cfg: Config{Items: items("a")}, sink: sink},
		{name: "no items", cfg: Config{Name: "c"}, sink: sink},
		{name: "empty item name", cfg: Config{Name: "c", Items: items("")}, sink: sink},
		{name: "duplicate item", cfg: Config{Name: "c", Items: items("a", "a")}, sink: sink},
		{name: "condition without evaluator", cfg: Config{Name: "c", Items: []Item{{Name: "a", Condition: "x"}}}, sink: sink},
		{name: "quorum too high", cfg: Config{Name: "c", Items: items("a"), Cancel: CancelConfig{Sources: []string{"l"}, Quorum: 2}}, sink: sink},
		{name: "negative quorum", cfg: Config{Name: "c", Items: items("a"), Cancel: CancelConfig{Quorum: -1}}, sink: sink},
		{name: "missing sink", cfg: Config{Name: "c", Items: items("a")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.eval, tt.sink)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "forwards", Forward.String())
	assert.Equal(t, "backwards", Backward.String())
	assert.Empty(t, None.String())
	assert.Nil(t, None.arg())
	assert.Equal(t, "forwards", Forward.arg())
}
