package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tern-dev/terndb"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>...",
	Short: "Search the index",
	Long: `Search prints the documents matching all terms of the query, best
score first. With --any a document only needs to match one term.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		any, _ := cmd.Flags().GetBool("any")
		limit, _ := cmd.Flags().GetInt("limit")

		ix, err := openIndex(true)
		if err != nil {
			return err
		}
		defer ix.Close()

		query := strings.Join(args, " ")

		start := time.Now()
		var hits []terndb.Hit
		if any {
			hits, err = ix.SearchAny(query)
		} else {
			hits, err = ix.Search(query)
		}
		if err != nil {
			return err
		}
		took := time.Since(start)

		fmt.Printf("%d results in %v\n", len(hits), took)
		if limit > 0 && len(hits) > limit {
			hits = hits[:limit]
		}

		for _, hit := range hits {
			d, err := ix.Get(hit.Doc)
			if err != nil {
				return err
			}
			fmt.Printf("%8d  %7.3f  %s\n", hit.Doc, hit.Score, snippet(d.Text, 60))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("any", false, "match documents containing any query term")
	searchCmd.Flags().IntP("limit", "n", 10, "max number of results to print, 0 for all")

	rootCmd.AddCommand(searchCmd)
}

func snippet(text string, width int) string {
	line := strings.Join(strings.Fields(text), " ")
	if r := []rune(line); len(r) > width {
		line = string(r[:width]) + "..."
	}
	return line
}
