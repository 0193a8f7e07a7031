package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tableflow/internal/config"
	"tableflow/internal/etl"
	"tableflow/internal/loader"
	"tableflow/internal/normalize"
	"tableflow/internal/probe"
	"tableflow/internal/storage"
)

func newSniffCommand(a *app) *cobra.Command {
	var encoding string
	cmd := &cobra.Command{
		Use:   "sniff <file>",
		Short: "Guess the delimiter and encoding of a delimited file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			f, err := probe.Sniff(ctx, args[0], probe.SniffOptions{Encoding: encoding})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			compression := string(f.Compression)
			if compression == "" {
				compression = "none"
			}
			fmt.Fprintf(w, "delimiter:   %s\n", probe.DelimiterName(f.Delimiter))
			fmt.Fprintf(w, "encoding:    %s\n", f.Encoding)
			fmt.Fprintf(w, "compression: %s\n", compression)
			fmt.Fprintf(w, "columns:     %d\n", len(f.Header))
			for i, h := range f.Header {
				fmt.Fprintf(w, "  %3d  %s\n", i+1, h)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "", "encoding to try before the built-in candidates")
	return cmd
}

func newLoadCommand(a *app) *cobra.Command {
	var (
		table     string
		columns   []string
		delimiter string
		encoding  string
	)
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load a delimited file into a table, replacing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delim, err := probe.ParseDelimiter(delimiter)
			if err != nil {
				return &ExitError{Code: ExitValidation, Err: err}
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			t, err := storage.OpenTable(ctx, a.settings.StoreConfig(), table)
			if err != nil {
				return err
			}
			defer t.Close()

			res, err := loader.Load(ctx, t.DB(), args[0], table, loader.Options{
				Columns:       columns,
				Delimiter:     delim,
				Encoding:      encoding,
				BatchSize:     a.settings.BatchSize,
				ProgressEvery: a.settings.ProgressEvery,
				Progress:      a.progress(),
				Job:           a.settings.Job,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %s rows into %s (%s bad, %d columns, sep=%s, enc=%s) in %s\n",
				humanize.Comma(res.Rows), res.Table, humanize.Comma(res.Bad), len(res.Columns),
				probe.DelimiterName(res.Delimiter), res.Encoding, res.Elapsed.Truncate(time.Millisecond))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&table, "table", config.DefaultRawTable, "destination table")
	f.StringSliceVar(&columns, "columns", nil, "header columns to load, in order (default all)")
	f.StringVar(&delimiter, "delimiter", "", "field delimiter (default sniff)")
	f.StringVar(&encoding, "encoding", "", "text encoding (default sniff)")
	return cmd
}

func newNormalizeCommand(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Write a normalized copy of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			src, err := storage.OpenTable(ctx, a.settings.StoreConfig(), from)
			if err != nil {
				return err
			}
			defer src.Close()

			out, res, err := normalize.Normalize(ctx, src, normalize.Options{
				Dest:          to,
				PageSize:      a.settings.PageSize,
				ProgressEvery: a.settings.ProgressEvery,
				Progress:      a.progress(),
				Job:           a.settings.Job,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normalized %s rows from %s into %s (%s bad) in %s\n",
				humanize.Comma(res.Rows), src.Name(), out.Name(), humanize.Comma(res.Bad),
				res.Elapsed.Truncate(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", config.DefaultRawTable, "source table")
	cmd.Flags().StringVar(&to, "to", "", "destination table (default <from>"+normalize.DestSuffix+")")
	return cmd
}

// loadJob reads and validates a job file and applies the settings overlay.
func (a *app) loadJob(cmd *cobra.Command, path string) (config.Job, error) {
	j, err := config.Load(path)
	if err != nil {
		return j, &ExitError{Code: ExitValidation, Err: err}
	}
	a.settings.Overlay(&j)
	if err := reportIssues(cmd.ErrOrStderr(), path, config.ValidateJob(j)); err != nil {
		return j, err
	}
	return j, nil
}

func newPlanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <job>",
		Short: "Print the compiled query of every pipeline in a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.loadJob(cmd, args[0])
			if err != nil {
				return err
			}
			d, err := storage.Lookup(j.Store.Kind)
			if err != nil {
				return &ExitError{Code: ExitValidation, Err: err}
			}
			views, err := etl.Plans(j, d)
			if err != nil {
				return &ExitError{Code: ExitValidation, Err: err}
			}
			w := cmd.OutOrStdout()
			for _, v := range views {
				fmt.Fprintf(w, "-- %s <- %s\n", v.Name, v.From)
				fmt.Fprint(w, v.Plan.Describe())
				fmt.Fprintln(w, v.Query.SQL()+";")
				if len(v.Query.Args) > 0 {
					fmt.Fprintf(w, "-- args: %v\n", v.Query.Args)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}

func newRunCommand(a *app) *cobra.Command {
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Load, normalize and materialize every pipeline of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.loadJob(cmd, args[0])
			if err != nil {
				return err
			}
			if validateOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s is valid\n", args[0])
				return nil
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			rep, err := etl.Run(ctx, j, etl.Options{RunID: a.runID, Progress: a.progress()})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate", false, "validate the job and exit")
	return cmd
}

func printReport(w io.Writer, rep etl.Report) {
	fmt.Fprintf(w, "run %s: loaded %s rows (%s bad) in %s\n",
		rep.RunID, humanize.Comma(rep.Load.Rows), humanize.Comma(rep.Load.Bad), rep.Elapsed.Truncate(time.Millisecond))
	if len(rep.Tables) == 0 {
		return
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"table", "from", "rows", "columns", "elapsed"})
	for _, t := range rep.Tables {
		tw.Append([]string{
			t.Name, t.From, humanize.Comma(t.Rows),
			strings.Join(t.Columns, ", "), t.Elapsed.Truncate(time.Millisecond).String(),
		})
	}
	tw.Render()
}

func newColumnsCommand(a *app) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List the columns of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			t, err := storage.OpenTable(ctx, a.settings.StoreConfig(), table)
			if err != nil {
				return err
			}
			defer t.Close()
			cols, err := t.Columns(ctx)
			if err != nil {
				return err
			}
			tw := tablewriter.NewWriter(cmd.OutOrStdout())
			tw.SetHeader([]string{"#", "name", "type"})
			for i, c := range cols {
				tw.Append([]string{fmt.Sprint(i + 1), c.Name, c.Type})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", config.DefaultRawTable, "table to describe")
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run an ad hoc query and print the rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			db, err := storage.Open(ctx, a.settings.StoreConfig())
			if err != nil {
				return err
			}
			defer db.Close()

			params := make([]any, len(args)-1)
			for i, s := range args[1:] {
				params[i] = s
			}
			tw := tablewriter.NewWriter(cmd.OutOrStdout())
			tw.SetAutoFormatHeaders(false)
			n := 0
			err = db.Stream(ctx, args[0], params, func(cols []string, vals []any) error {
				if n == 0 {
					tw.SetHeader(cols)
				}
				n++
				if limit > 0 && n > limit {
					return errLimit
				}
				row := make([]string, len(vals))
				for i, v := range vals {
					row[i] = cell(v)
				}
				tw.Append(row)
				return nil
			})
			if err != nil && !errors.Is(err, errLimit) {
				return err
			}
			tw.Render()
			if limit > 0 && n > limit {
				fmt.Fprintf(cmd.ErrOrStderr(), "(truncated at %d rows)\n", limit)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to print (0 = all)")
	return cmd
}

var errLimit = errors.New("row limit reached")

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
