package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/germanamz/playfield/cmd/playfield/internal/script"
	"github.com/germanamz/playfield/pkg/condition"
	"github.com/germanamz/playfield/pkg/engine"
)

type itemsOptions struct {
	playerVars  []string
	machineVars []string
}

// newItemsCommand creates "playfield items", which lists every carousel item
// and whether its condition holds for a set of variables.
func newItemsCommand(opts *Options) *cobra.Command {
	var o itemsOptions

	cmd := &cobra.Command{
		Use:   "items [mode...]",
		Short: "List carousel items and evaluate their conditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			snap, err := o.snapshot(cfg)
			if err != nil {
				return err
			}

			rows, err := itemRows(cfg, snap, args)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"MODE", "ITEM", "CONDITION", "AVAILABLE"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(rows)
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&o.playerVars, "player-var", nil, "Player variable as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&o.machineVars, "machine-var", nil, "Machine variable as key=value (repeatable)")

	return cmd
}

// snapshot overlays the flag values on the configured defaults.
func (o itemsOptions) snapshot(cfg engine.Config) (condition.Snapshot, error) {
	player, err := overlay(cfg.PlayerVars, o.playerVars)
	if err != nil {
		return nil, fmt.Errorf("--player-var: %w", err)
	}
	machine, err := overlay(cfg.MachineVars, o.machineVars)
	if err != nil {
		return nil, fmt.Errorf("--machine-var: %w", err)
	}

	return condition.Snapshot{
		condition.ScopePlayer:  player,
		condition.ScopeMachine: machine,
	}, nil
}

func overlay(defaults map[string]any, pairs []string) (map[string]any, error) {
	vars := maps.Clone(defaults)
	if vars == nil {
		vars = map[string]any{}
	}

	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid var %q, expected key=value", p)
		}
		v, err := script.ParseValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		vars[key] = v
	}
	return vars, nil
}

// itemRows evaluates every item of the selected carousel modes. An empty
// filter selects all of them.
func itemRows(cfg engine.Config, snap condition.Snapshot, filter []string) ([][]string, error) {
	eval := condition.NewLua()

	var rows [][]string
	for _, m := range cfg.Modes {
		if m.ResolvedKind() != engine.KindCarousel || m.Carousel == nil {
			continue
		}
		if len(filter) > 0 && !slices.Contains(filter, m.Name) {
			continue
		}

		for _, it := range m.Carousel.Items {
			available := "yes"
			if it.Condition != "" {
				ok, err := eval.Evaluate(it.Condition, snap)
				switch {
				case err != nil:
					available = "error: " + err.Error()
				case !ok:
					available = "no"
				}
			}
			rows = append(rows, []string{m.Name, it.Name, it.Condition, available})
		}
	}

	if len(filter) > 0 && len(rows) == 0 {
		return nil, fmt.Errorf("no carousel modes named %s", strings.Join(filter, ", "))
	}
	return rows, nil
}
