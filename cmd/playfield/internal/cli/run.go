package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/germanamz/playfield/cmd/playfield/internal/script"
	"github.com/germanamz/playfield/pkg/engine"
)

// eventResetComplete is posted once a freshly built engine is ready, so
// attract-style modes can start on it.
const eventResetComplete = "reset_complete"

const runBuffer = 4096

// newRunCommand creates "playfield run", which replays event scripts and
// prints every event they cause.
func newRunCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [script...]",
		Short: "Replay event scripts against a fresh engine",
		Long:  "Replay event scripts against a fresh engine and print every event in order. Bare names are looked up in <machine>/scripts; with no arguments every script there is run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			paths := make([]string, len(args))
			for i, a := range args {
				paths[i] = opts.machine().Script(a)
			}
			if len(paths) == 0 {
				paths = opts.machine().Scripts()
			}
			if len(paths) == 0 {
				return errors.New("no scripts to run")
			}

			log := LoggerFromContext(cmd.Context())
			for _, p := range paths {
				if err := runScript(cmd, cfg, p, log); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// runScript plays one script on its own engine.
func runScript(cmd *cobra.Command, cfg engine.Config, path string, log *slog.Logger) error {
	steps, err := script.ParseFile(path)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	sub := eng.Events().Subscribe(runBuffer)
	defer eng.Events().Unsubscribe(sub)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "== %s\n", filepath.Base(path))

	eng.Post(eventResetComplete, nil)
	drain(out, sub)

	log.Debug("running script", "path", path, "steps", len(steps))
	return script.Run(cmd.Context(), eng, steps, func(script.Step) { drain(out, sub) })
}

// drain prints every event buffered on sub without blocking.
func drain(w io.Writer, sub *engine.Subscription) {
	for {
		select {
		case e := <-sub.C:
			_, _ = fmt.Fprintln(w, formatEvent(e))
		default:
			return
		}
	}
}

// formatEvent renders an event as "name key=value ..." with sorted keys.
func formatEvent(e engine.Event) string {
	var b strings.Builder
	b.WriteString(e.Name)

	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := e.Args[k]
		if v == nil {
			v = "none"
		}
		_, _ = fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}
