package carousel

import (
	"errors"
	"fmt"
)

// Direction is the way the highlight last moved.
type Direction int

const (
	None Direction = iota
	Forward
	Backward
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forwards"
	case Backward:
		return "backwards"
	default:
		return ""
	}
}

// arg is the notification argument for the direction: nil for None.
func (d Direction) arg() any {
	if d == None {
		return nil
	}
	return d.String()
}

// Item is a selectable entry. Items are configured once and never mutated.
type Item struct {
	Name string
	// Condition is an optional expression; an item with an empty condition
	// is always present.
	Condition string
	// Metadata is carried for display layers and never read by the engine.
	Metadata map[string]any
}

// ErrInvalidConfig is wrapped by every configuration error returned from New.
var ErrInvalidConfig = errors.New("carousel: invalid config")

// ConditionError reports an item whose condition could not be evaluated.
type ConditionError struct {
	Carousel string
	Item     string
	Expr     string
	Err      error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("carousel %q: item %q: condition %q: %v", e.Carousel, e.Item, e.Expr, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }
