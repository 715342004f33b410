package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"calgrid/internal/calendar"
	"calgrid/internal/config"
	"calgrid/internal/ics"
	"calgrid/internal/layout"
	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

func newExpandCmd(flags *rootFlags) *cobra.Command {
	var view, date string
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the occurrences and block geometry of one view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			w, err := viewWindow(conf, view, date)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), conf, flags)
			if err != nil {
				return err
			}
			events, err := b.FetchWindow(cmd.Context(), w.Start, w.End)
			if err != nil {
				return err
			}
			res := ics.ExpandAll(events, w, conf.ExpandOptions())
			return printOccurrences(cmd.OutOrStdout(), w, res)
		},
	}
	cmd.Flags().StringVar(&view, "view", "week", "View mode: day, week or month")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date YYYY-MM-DD (default today)")
	return cmd
}

func viewWindow(conf *config.Config, view, date string) (model.Window, error) {
	loc := conf.Location()
	anchor := time.Now().In(loc)
	if date != "" {
		var err error
		if anchor, err = time.ParseInLocation(time.DateOnly, date, loc); err != nil {
			return model.Window{}, fmt.Errorf("invalid --date: %w", err)
		}
	}
	return timegrid.WindowFor(model.ParseViewMode(view), anchor, timegrid.ParseWeekStart(conf.WeekStart)), nil
}

func printOccurrences(out io.Writer, w model.Window, res ics.ExpandResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTART\tEND\tTITLE\tKEY\tTOP\tHEIGHT")
	for _, day := range timegrid.Days(w) {
		for _, b := range layout.Layout(day, res.Occurrences) {
			o := b.Occurrence
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s#%d\t%.0f\t%.0f\n",
				day.Format("Mon 01-02"),
				o.Start.Format("15:04"),
				o.End.Format("15:04"),
				o.Source.Title,
				o.SourceID(), o.Index,
				b.Top, b.Height,
			)
		}
	}
	for _, id := range res.Degraded {
		fmt.Fprintf(tw, "# %s: unusable recurrence rule, literal occurrence only\n", id)
	}
	for _, id := range res.Truncated {
		fmt.Fprintf(tw, "# %s: expansion truncated\n", id)
	}
	return tw.Flush()
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var view, date, out, name string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the events of one view as an ICS file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			w, err := viewWindow(conf, view, date)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), conf, flags)
			if err != nil {
				return err
			}
			events, err := b.FetchWindow(cmd.Context(), w.Start, w.End)
			if err != nil {
				return err
			}

			dst := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				dst = f
			}
			opts := ics.ExportOptions{Name: name, Monthly: ics.ParseMonthlyMode(conf.Grid.Monthly)}
			return ics.ExportWith(dst, events, opts)
		},
	}
	cmd.Flags().StringVar(&view, "view", "month", "View mode: day, week or month")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	cmd.Flags().StringVar(&name, "name", "calgrid", "Calendar name (X-WR-CALNAME)")
	return cmd
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	var each bool
	cmd := &cobra.Command{
		Use:   "replay SCRIPT.yaml",
		Short: "Run a scripted sequence of host messages and print snapshots",
		Long: `Replay feeds a YAML list of host messages through one calendar, e.g.

  - type: set_view
    mode: week
    anchor: 2024-01-01T00:00:00Z
  - type: pointer_down
    x: 60
    y: 560

Store calls run inline, so the output is deterministic.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			msgs, err := readScript(args[0])
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), conf, flags)
			if err != nil {
				return err
			}

			cal := calendar.New(b, conf.CalendarOptions())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, msg := range msgs {
				calendar.Drive(cmd.Context(), cal, msg)
				if each {
					if err := enc.Encode(cal.Snapshot()); err != nil {
						return err
					}
				}
			}
			if each {
				return nil
			}
			return enc.Encode(cal.Snapshot())
		},
	}
	cmd.Flags().BoolVar(&each, "each", false, "Print a snapshot after every message")
	return cmd
}

// readScript decodes a YAML list of host messages. Each entry is
// re-encoded as JSON and decoded like a websocket frame.
func readScript(path string) ([]calendar.Msg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	msgs := make([]calendar.Msg, 0, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
		msg, err := calendar.DecodeInput(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
