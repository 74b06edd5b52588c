// Package script parses and replays event scripts: plain text files with one
// command per line, used to drive a machine without hardware.
//
//	# comments and blank lines are ignored
//	start_game
//	post start_mode1
//	post award points=500 label=bonus
//	switch s_flipper_left on
//	hit s_start
//	set player show_item4 true
//	set machine player2_score 500000
//	add player score 1000
//	unset player show_item4
//	add_player
//	next_player
//	end_game
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/playfield/pkg/condition"
	"github.com/germanamz/playfield/pkg/engine"
)

// Op is a script command.
type Op string

// Supported commands.
const (
	OpPost       Op = "post"
	OpSwitch     Op = "switch"
	OpHit        Op = "hit"
	OpSet        Op = "set"
	OpAdd        Op = "add"
	OpUnset      Op = "unset"
	OpStartGame  Op = "start_game"
	OpAddPlayer  Op = "add_player"
	OpNextPlayer Op = "next_player"
	OpEndGame    Op = "end_game"
)

// Step is one parsed script line.
type Step struct {
	Line   int
	Op     Op
	Name   string         // event, switch or variable name
	Args   map[string]any // post arguments
	Active bool           // switch state
	Scope  string         // variable scope
	Value  any            // set value
	Delta  int            // add increment
}

// Target is what a script drives; *engine.Engine satisfies it.
type Target interface {
	Post(name string, args map[string]any)
	Switch(name string, active bool)
	Set(scope, key string, value any) error
	Add(scope, key string, delta int) (any, error)
	Unset(scope, key string) error
	StartGame() (*engine.Game, error)
	AddPlayer() (int, error)
	NextPlayer() (int, error)
	EndGame() error
}

// ParseFile parses the script at path.
func ParseFile(path string) ([]Step, error) {
	f, err := os.Open(path) //nolint:gosec // script path is caller-provided
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads a script. Errors name the offending line.
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		step, err := parseLine(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("script: line %d: %w", line, err)
		}
		step.Line = line
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	return steps, nil
}

func parseLine(fields []string) (Step, error) {
	op, rest := Op(fields[0]), fields[1:]

	switch op {
	case OpPost:
		if len(rest) == 0 {
			return Step{}, errors.New("post: event name is required")
		}
		args, err := parseArgs(rest[1:])
		if err != nil {
			return Step{}, fmt.Errorf("post: %w", err)
		}
		return Step{Op: op, Name: rest[0], Args: args}, nil

	case OpSwitch:
		if len(rest) != 2 {
			return Step{}, errors.New("switch: expected <name> <on|off>")
		}
		active, err := parseState(rest[1])
		if err != nil {
			return Step{}, err
		}
		return Step{Op: op, Name: rest[0], Active: active}, nil

	case OpHit:
		if len(rest) != 1 {
			return Step{}, errors.New("hit: expected <switch>")
		}
		return Step{Op: op, Name: rest[0]}, nil

	case OpSet:
		if len(rest) != 3 {
			return Step{}, errors.New("set: expected <player|machine> <name> <value>")
		}
		scope, err := parseScope(op, rest[0])
		if err != nil {
			return Step{}, err
		}
		value, err := ParseValue(rest[2])
		if err != nil {
			return Step{}, fmt.Errorf("set: %w", err)
		}
		return Step{Op: op, Scope: scope, Name: rest[1], Value: value}, nil

	case OpAdd:
		if len(rest) != 3 {
			return Step{}, errors.New("add: expected <player|machine> <name> <delta>")
		}
		scope, err := parseScope(op, rest[0])
		if err != nil {
			return Step{}, err
		}
		delta, err := strconv.Atoi(rest[2])
		if err != nil {
			return Step{}, fmt.Errorf("add: invalid delta %q", rest[2])
		}
		return Step{Op: op, Scope: scope, Name: rest[1], Delta: delta}, nil

	case OpUnset:
		if len(rest) != 2 {
			return Step{}, errors.New("unset: expected <player|machine> <name>")
		}
		scope, err := parseScope(op, rest[0])
		if err != nil {
			return Step{}, err
		}
		return Step{Op: op, Scope: scope, Name: rest[1]}, nil

	case OpStartGame, OpAddPlayer, OpNextPlayer, OpEndGame:
		if len(rest) != 0 {
			return Step{}, fmt.Errorf("%s takes no arguments", op)
		}
		return Step{Op: op}, nil
	}

	return Step{}, fmt.Errorf("unknown command %q", op)
}

func parseArgs(fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	args := make(map[string]any, len(fields))
	for _, f := range fields {
		key, raw, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", f)
		}
		v, err := ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		args[key] = v
	}
	return args, nil
}

func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "active", "1", "true":
		return true, nil
	case "off", "inactive", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("switch: invalid state %q", s)
}

func parseScope(op Op, s string) (string, error) {
	switch s {
	case "player", condition.ScopePlayer:
		return condition.ScopePlayer, nil
	case condition.ScopeMachine:
		return condition.ScopeMachine, nil
	}
	return "", fmt.Errorf("%s: unknown scope %q", op, s)
}

// ParseValue decodes a scalar the way YAML would: true/false become bools,
// numbers become int or float64, and everything else stays a string.
func ParseValue(s string) (any, error) {
	if s == "" {
		return "", nil
	}

	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	switch v.(type) {
	case bool, int, float64, string:
		return v, nil
	case nil:
		return nil, nil
	}
	return s, nil
}

// Run executes steps against t in order. after, when set, is called after
// each step; Run stops at the first failing step or when ctx is done.
func Run(ctx context.Context, t Target, steps []Step, after func(Step)) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := apply(t, s); err != nil {
			return fmt.Errorf("script: line %d: %s: %w", s.Line, s.Op, err)
		}
		if after != nil {
			after(s)
		}
	}
	return nil
}

func apply(t Target, s Step) error {
	switch s.Op {
	case OpPost:
		t.Post(s.Name, s.Args)
	case OpSwitch:
		t.Switch(s.Name, s.Active)
	case OpHit:
		t.Switch(s.Name, true)
		t.Switch(s.Name, false)
	case OpSet:
		return t.Set(s.Scope, s.Name, s.Value)
	case OpAdd:
		_, err := t.Add(s.Scope, s.Name, s.Delta)
		return err
	case OpUnset:
		return t.Unset(s.Scope, s.Name)
	case OpStartGame:
		_, err := t.StartGame()
		return err
	case OpAddPlayer:
		_, err := t.AddPlayer()
		return err
	case OpNextPlayer:
		_, err := t.NextPlayer()
		return err
	case OpEndGame:
		return t.EndGame()
	default:
		return fmt.Errorf("unknown command %q", s.Op)
	}
	return nil
}
