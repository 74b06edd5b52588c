package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/germanamz/playfield/cmd/playfield/internal/templates"
)

const defaultTemplate = "extra-ball"

type initOptions struct {
	template string
	force    bool
	list     bool
}

// newInitCommand creates "playfield init", which bootstraps a machine folder
// from an embedded template.
func newInitCommand(opts *Options) *cobra.Command {
	var o initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a machine folder with a sample carousel configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if o.list {
				for _, m := range templates.List() {
					_, _ = fmt.Fprintf(out, "  %-14s %s\n", m.Name, m.Description)
				}
				return nil
			}

			t, err := templates.Get(o.template)
			if err != nil {
				return err
			}

			dir := opts.machine()
			if err := templates.Apply(t, dir.Root(), o.force); err != nil {
				return err
			}

			LoggerFromContext(cmd.Context()).Debug("machine initialized", "template", t.Meta.Name, "root", dir.Root())
			_, _ = fmt.Fprintf(out, "Initialized %q template in %s\n", t.Meta.Name, dir.Root())
			_, _ = fmt.Fprintf(out, "Run 'playfield -m %s run' to replay its scripts.\n", opts.MachineDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.template, "template", "t", defaultTemplate, "Template to use")
	cmd.Flags().BoolVar(&o.force, "force", false, "Overwrite existing config and scripts")
	cmd.Flags().BoolVar(&o.list, "list", false, "List available templates")

	return cmd
}
