// Package engine is the composition root of a playfield. It builds the event
// bus, the machine and player variable stores, and the configured modes from
// a YAML configuration, and exposes commands (Post, Switch, StartGame, Set)
// through which frontends drive the machine. Frontends observe activity by
// subscribing to the EventBus and never reach into the mode implementations.
package engine
