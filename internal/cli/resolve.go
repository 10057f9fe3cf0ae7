package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/histsess/internal/reltime"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Now       string
	WeekStart string
}

// ResolvedTime is one resolved expression.
type ResolvedTime struct {
	Expr     string    `json:"expr"`
	Relative bool      `json:"relative"`
	Time     time.Time `json:"time"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <expr>...",
		Short: "Resolve relative time expressions",
		Long: `Parse time expressions and resolve them to absolute UTC instants.

An expression is a base keyword (NOW, SECOND, MINUTE, HOUR, DAY, WEEK,
MONTH or YEAR) followed by signed offsets such as -1D, +30M or -1MO, or
an absolute RFC 3339 timestamp.

Examples:
  histsess resolve NOW-1H DAY WEEK+1D
  histsess resolve --now 2024-03-15T10:30:00Z --week-start monday WEEK`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Now, "now", "", "reference instant (RFC 3339, defaults to the current time)")
	cmd.Flags().StringVar(&opts.WeekStart, "week-start", "", "first day of the week (overrides the config)")

	return cmd
}

func runResolve(opts *ResolveOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if opts.Now != "" {
		now, err = time.Parse(time.RFC3339Nano, opts.Now)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --now", err)
		}
	}

	resolver := reltime.Resolver{WeekStart: cfg.Weekday()}
	if opts.WeekStart != "" {
		day, ok := parseWeekday(opts.WeekStart)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --week-start %q", opts.WeekStart))
		}
		resolver.WeekStart = day
	}

	resolved := make([]ResolvedTime, 0, len(args))
	for _, expr := range args {
		t, err := reltime.Parse(expr)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid time expression", err)
		}
		resolved = append(resolved, ResolvedTime{
			Expr:     t.String(),
			Relative: t.IsRelative(),
			Time:     resolver.Resolve(t, now).UTC(),
		})
	}

	return opts.formatter(cmd).Render(resolved, func(w io.Writer) {
		for _, r := range resolved {
			fmt.Fprintf(w, "%s\t%s\n", r.Expr, r.Time.Format(time.RFC3339Nano))
		}
	})
}

func parseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, true
		}
	}
	return 0, false
}
