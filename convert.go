package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"flipbook-app/config"
	"flipbook-app/internal/mcptool"
)

func convertCmd() *cobra.Command {
	var query mcptool.ConvertQuery
	cmd := &cobra.Command{
		Use:   "convert <file.pdf>",
		Short: "Convert a PDF to a standalone HTML flipbook and/or a recombined PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := newLogger(cfg.Log)
			p, err := newPipeline(cfg.Pipeline, log)
			if err != nil {
				return err
			}

			query.Path = args[0]
			if query.HTMLOut == "" && query.PDFOut == "" {
				query.HTMLOut = strings.TrimSuffix(query.Path, filepath.Ext(query.Path)) + ".html"
			}
			_, resp, err := mcptool.NewConverter(p, log).Handle(cmd.Context(), nil, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", resp.Title, resp.Summary)
			for _, w := range resp.Report.Warnings {
				fmt.Fprintf(out, "  page %d %s: %s\n", w.Page, w.Side, w.Message)
			}
			for _, path := range []string{resp.HTMLOut, resp.PDFOut} {
				if path != "" {
					fmt.Fprintln(out, "wrote", path)
				}
			}
			if resp.Report.LeafCount == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no pages could be rendered")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&query.HTMLOut, "html", "", "write a standalone HTML viewer to this path (default <file>.html)")
	cmd.Flags().StringVar(&query.PDFOut, "pdf", "", "write the recombined PDF to this path")
	cmd.Flags().StringVar(&query.Title, "title", "", "flipbook title (default: the document title)")
	cmd.Flags().StringVar(&query.Kind, "kind", "book", "viewer labels: book or story")
	return cmd
}
