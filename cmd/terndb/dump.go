package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/segment"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the on disk segments",
	Long: `Dump prints one line per segment with its base id, doc counts and
skip parameters. With --terms it also lists every dictionary term, its
document frequency and the head of its postings list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withTerms, _ := cmd.Flags().GetBool("terms")

		segs, err := segment.Find(viper.GetString("path"))
		if err != nil {
			return err
		}

		for _, seg := range segs {
			rdr, err := segment.Open(seg)
			if err != nil {
				return err
			}

			skip0, skipN := rdr.SkipParams()
			fmt.Printf("segment %d: docs=%d live=%d deleted=%d terms=%d skip=%d*%d\n",
				seg.Base, rdr.Docs(), rdr.Live(), rdr.Deleted(), rdr.Terms(), skip0, skipN)

			if withTerms {
				err := rdr.WalkTerms(func(term []byte, info dict.TermInfo) error {
					head, err := postingsHead(rdr, term, info.DF, 8)
					if err != nil {
						return err
					}
					fmt.Printf("  %-24s df=%-6d %s\n", term, info.DF, head)
					return nil
				})
				if err != nil {
					rdr.Close()
					return err
				}
			}

			if err := rdr.Close(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().Bool("terms", false, "also list dictionary terms")

	rootCmd.AddCommand(dumpCmd)
}

// postingsHead renders the first entries of a term's postings list as
// local:freq pairs.
func postingsHead(rdr *segment.Reader, term []byte, df, max int) (string, error) {
	it, _, err := rdr.Postings(term)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 0; i < df && i < max; i++ {
		doc, err := it.Next()
		if err != nil {
			return "", err
		}
		if doc == docs.EOF {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d", doc, it.Freq())
	}
	if df > max {
		fmt.Fprintf(&b, " +%d", df-max)
	}
	return b.String(), nil
}
