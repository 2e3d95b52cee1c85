package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitabwire/charlist/model"
)

// listCmd drives a controller without a terminal UI and prints the resulting
// list. It loads the first page, then up to --pages-1 more, then applies the
// search text and subcategory when given.
func listCmd(opts *options) *cobra.Command {
	var (
		pages   int
		search  string
		filter  string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print characters without the interactive UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("cli: --pages must be at least 1, got %d", pages)
			}
			var option *model.FilterOption
			if filter != "" {
				o, err := parseFilter(filter)
				if err != nil {
					return err
				}
				option = &o
			}

			env, err := opts.build()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d := &driver{ctrl: env.ctrl}
			d.states, d.unsubscribe = env.ctrl.Subscribe(16)
			defer d.unsubscribe()

			s, err := d.collect(ctx, pages, search, option)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			return writeTable(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringVar(&search, "search", "", "only show names containing this text")
	cmd.Flags().StringVar(&filter, "filter", "", "subcategory filter as Category=Value, e.g. Species=Human")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final snapshot as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

// parseFilter turns "Species=Human" into the option the picker would offer.
func parseFilter(s string) (model.FilterOption, error) {
	name, value, found := strings.Cut(s, "=")
	if !found {
		return model.FilterOption{}, fmt.Errorf("cli: filter %q is not Category=Value", s)
	}
	cat, ok := model.ParseFilterCategory(name)
	if !ok {
		return model.FilterOption{}, fmt.Errorf("cli: unknown filter category %q", name)
	}
	if value == "" {
		return model.FilterOption{}, fmt.Errorf("cli: filter %q has no value", s)
	}
	return model.FilterOption{Text: value, Color: cat.Color(), Category: model.CategoryPtr(cat)}, nil
}

type eventSink interface {
	Submit(ev model.Event)
	Subscribe(buffer int) (<-chan model.State, func())
}

// driver submits events one at a time and waits for each to settle.
type driver struct {
	ctrl        eventSink
	states      <-chan model.State
	unsubscribe func()
	last        model.State
}

var errStreamClosed = errors.New("cli: controller closed")

func (d *driver) collect(ctx context.Context, pages int, search string, option *model.FilterOption) (model.State, error) {
	s, err := d.do(ctx, model.ViewAppeared{})
	if err != nil {
		return s, err
	}
	for i := 1; i < pages && s.IsLoaded() && s.HasMore; i++ {
		if s, err = d.do(ctx, model.LoadMore{}); err != nil {
			return s, err
		}
	}
	if search != "" && s.IsLoaded() {
		if s, err = d.do(ctx, model.Search{Text: search}); err != nil {
			return s, err
		}
	}
	if option != nil && s.IsLoaded() {
		if s, err = d.do(ctx, model.SubcategoryTapped{Option: *option}); err != nil {
			return s, err
		}
	}
	if s.Kind == model.StateError {
		return s, fmt.Errorf("cli: %s", s.Message)
	}
	return s, nil
}

// do submits ev and returns the snapshot that ends its handling. A snapshot
// settles ev when it is newer than the last one seen, is not Loading, and,
// for events that fetch, reflects the page counter moving or an error.
func (d *driver) do(ctx context.Context, ev model.Event) (model.State, error) {
	before := d.last
	d.ctrl.Submit(ev)
	for {
		select {
		case <-ctx.Done():
			return d.last, fmt.Errorf("cli: waiting for %s: %w", ev.EventName(), ctx.Err())
		case s, ok := <-d.states:
			if !ok {
				return d.last, errStreamClosed
			}
			d.last = s
			if s.Version > before.Version && settles(ev, before, s) {
				return s, nil
			}
		}
	}
}

func settles(ev model.Event, before, s model.State) bool {
	if s.Kind == model.StateLoading {
		return false
	}
	if s.Kind == model.StateError {
		return true
	}
	switch ev.(type) {
	case model.LoadMore, model.SubcategoryTapped:
		return s.Page > before.Page
	}
	return true
}

func writeTable(w io.Writer, s model.State) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSPECIES\tGENDER")
	for _, c := range s.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			c.ID,
			orDash(c.DisplayName()),
			attribute(c, model.CategoryStatus),
			attribute(c, model.CategorySpecies),
			attribute(c, model.CategoryGender),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	more := ""
	if s.HasMore {
		more = ", more available"
	}
	_, err := fmt.Fprintf(w, "\n%d characters, next page %d%s\n", len(s.Items), s.Page, more)
	return err
}

func attribute(c model.Character, cat model.FilterCategory) string {
	text, _ := c.Attribute(cat)
	return orDash(text)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
