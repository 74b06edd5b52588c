package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/germanamz/playfield/pkg/engine"
)

// newValidateCommand creates "playfield validate", which loads the config and
// builds every mode without running anything.
func newValidateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the machine configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			eng, err := engine.New(cfg, engine.WithLogger(LoggerFromContext(cmd.Context())))
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			kinds := make(map[string]string, len(cfg.Modes))
			carousels := 0
			for _, m := range cfg.Modes {
				kinds[m.Name] = m.ResolvedKind()
				if kinds[m.Name] == engine.KindCarousel {
					carousels++
				}
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s: ok, %d modes (%d carousels)\n", opts.configPath(), len(cfg.Modes), carousels); err != nil {
				return err
			}
			for _, name := range eng.Modes().Names() {
				if _, err := fmt.Fprintf(out, "  %s (%s)\n", name, kinds[name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
