package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/histsess/internal/browse"
)

// BrowseOptions holds flags for the browse command.
type BrowseOptions struct {
	*RootOptions
	Database string
	Root     string
	PageSize int
}

// BrowsePage is one page returned by the namespace.
type BrowsePage struct {
	Number   int              `json:"page"`
	Elements []browse.Element `json:"elements"`
}

// NewBrowseCommand creates the browse command.
func NewBrowseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BrowseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "List the branches and items under a namespace path",
		Long: `Browse one level of the item namespace. Branches are listed before
items, each page holding at most --page elements.

Examples:
  histsess browse --db ./plant.db
  histsess browse --db ./plant.db --root plant.unit1 --page 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config database)")
	cmd.Flags().StringVar(&opts.Root, "root", "", "namespace path to browse (empty for the root)")
	cmd.Flags().IntVar(&opts.PageSize, "page", -1, "elements per page, 0 for no limit (defaults to the config)")

	return cmd
}

func runBrowse(opts *BrowseOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	pageSize := opts.PageSize
	if pageSize < 0 {
		pageSize = cfg.Browse.PageSize
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx, cfg, opts.Database, envOptions{})
	if err != nil {
		return err
	}
	defer e.close(ctx)

	out := opts.formatter(cmd)
	out.SessionID = e.session.ID()

	var pages []BrowsePage
	err = e.session.BrowseAll(ctx, opts.Root, pageSize, func(page []browse.Element) error {
		pages = append(pages, BrowsePage{Number: len(pages) + 1, Elements: page})
		return nil
	})
	if err != nil {
		return out.Fail("E_BROWSE", ExitFailure, "browse failed", err)
	}

	return out.Render(pages, func(w io.Writer) {
		if len(pages) == 0 {
			fmt.Fprintln(w, "No elements.")
			return
		}
		for _, p := range pages {
			fmt.Fprintf(w, "page %d\n", p.Number)
			for _, el := range p.Elements {
				kind := "item  "
				if el.IsBranch {
					kind = "branch"
				}
				fmt.Fprintf(w, "  %s %-20s %s\n", kind, el.Name, el.ItemID)
			}
		}
	})
}
