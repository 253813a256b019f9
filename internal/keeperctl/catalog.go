package keeperctl

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/spf13/cobra"
)

type catalogSummary struct {
	Valid         bool     `json:"valid"`
	Configs       []string `json:"configs"`
	Disabled      []string `json:"disabled,omitempty"`
	DocumentTypes []string `json:"document_types"`
}

// NewCatalogCommand groups catalog subcommands.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect catalog files",
	}
	cmd.AddCommand(newCatalogCheckCommand(rootOpts))
	return cmd
}

func newCatalogCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Parse and validate a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.FileSource{Path: args[0]}.Load(cmd.Context())
			if err != nil {
				return err
			}

			s := catalogSummary{
				Valid:         true,
				Configs:       slices.Sorted(maps.Keys(c.Configs)),
				DocumentTypes: c.DocumentTypeTags(),
			}
			for _, id := range s.Configs {
				if !c.Configs[id].Enabled {
					s.Disabled = append(s.Disabled, id)
				}
			}

			text := fmt.Sprintf("%s: %d configs (%d disabled), %d document types",
				args[0], len(s.Configs), len(s.Disabled), len(s.DocumentTypes))
			return output(cmd, rootOpts, text, s)
		},
	}
}
