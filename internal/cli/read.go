package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/session"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	Database  string
	Start     string
	End       string
	MaxValues int
}

// ItemHistory is the raw history of one item.
type ItemHistory struct {
	Item   hda.ItemID  `json:"item"`
	Values []hda.Value `json:"values"`
	Error  string      `json:"error,omitempty"`
}

// ReadOutput is the result of a raw read.
type ReadOutput struct {
	Range hda.TimeRange `json:"range"`
	Items []ItemHistory `json:"items"`
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <item>...",
		Short: "Read raw history of items",
		Long: `Read every raw value of the given items between --start and --end.
Times are relative expressions or RFC 3339 timestamps. A start later than
the end returns values newest first.

Exit codes:
  0 - Every item was read
  1 - One or more items were rejected or failed
  2 - Command error (bad flags, database errors)

Examples:
  histsess read --db ./plant.db --start DAY-1D --end DAY plant.unit1.temp
  histsess read --db ./plant.db --start NOW --end NOW-1H --max 10 plant.unit1.flow`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config database)")
	cmd.Flags().StringVar(&opts.Start, "start", "DAY", "start of the time range")
	cmd.Flags().StringVar(&opts.End, "end", "NOW", "end of the time range")
	cmd.Flags().IntVar(&opts.MaxValues, "max", -1, "maximum values per item, 0 for no limit (defaults to the config)")

	return cmd
}

func runRead(opts *ReadOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	span, err := parseSpan(opts.Start, opts.End)
	if err != nil {
		return err
	}
	maxValues := opts.MaxValues
	if maxValues < 0 {
		maxValues = cfg.Read.MaxValues
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx, cfg, opts.Database, envOptions{})
	if err != nil {
		return err
	}
	defer e.close(ctx)

	out := opts.formatter(cmd)
	out.SessionID = e.session.ID()

	results, err := e.session.ReadRawSync(ctx, itemsOf(args), span, maxValues)
	if err != nil {
		return out.Fail("E_READ", ExitFailure, "read failed", err)
	}

	output := ReadOutput{
		Range: hda.TimeRange{Start: e.session.Resolve(span.Start), End: e.session.Resolve(span.End)},
		Items: make([]ItemHistory, 0, len(results)),
	}
	failed := 0
	for _, r := range results {
		h := ItemHistory{Item: r.Item.ID, Values: r.Values}
		if h.Values == nil {
			h.Values = []hda.Value{}
		}
		if r.Err != nil {
			h.Error = r.Err.Error()
			failed++
		}
		output.Items = append(output.Items, h)
	}

	err = out.Render(output, func(w io.Writer) {
		for _, h := range output.Items {
			if h.Error != "" {
				fmt.Fprintf(w, "%s: %s\n", h.Item, h.Error)
				continue
			}
			fmt.Fprintf(w, "%s (%d values)\n", h.Item, len(h.Values))
			for _, v := range h.Values {
				fmt.Fprintf(w, "  %s %g %s\n", v.Timestamp.UTC().Format(time.RFC3339Nano), v.Data, v.Quality)
			}
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d item(s) failed", failed, len(results)))
	}
	return nil
}

func parseSpan(start, end string) (session.Span, error) {
	s, err := reltime.Parse(start)
	if err != nil {
		return session.Span{}, WrapExitError(ExitCommandError, "invalid --start", err)
	}
	e, err := reltime.Parse(end)
	if err != nil {
		return session.Span{}, WrapExitError(ExitCommandError, "invalid --end", err)
	}
	return session.Span{Start: s, End: e}, nil
}

func itemsOf(ids []string) []hda.Item {
	items := make([]hda.Item, len(ids))
	for i, id := range ids {
		items[i] = hda.Item{ID: hda.NormalizeItemID(id), ClientHandle: hda.ClientHandle(i + 1)}
	}
	return items
}
