package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session against the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := terndb.Open(viper.GetString("path"), terndb.Options{
			CreateDirs: true,
		})
		if err != nil {
			return err
		}
		defer ix.Close()

		return repl(ix)
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}

var replWords = []string{
	"add ", "search ", "any ", "get ", "delete ",
	"walk", "stat", "compact", "sync", "help", "quit",
}

func repl(ix terndb.Index) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var words []string
		for _, w := range replWords {
			if strings.HasPrefix(w, strings.ToLower(prefix)) {
				words = append(words, w)
			}
		}
		return words
	})

	if f, err := os.Open(historyPath()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer writeHistory(line)

	for {
		input, err := line.Prompt("terndb> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			return nil
		} else if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		cmd, rest, _ := strings.Cut(input, " ")
		if err := replEval(ix, strings.ToLower(cmd), rest); err == errReplQuit {
			return nil
		} else if err != nil {
			fmt.Println("error:", err)
		}
	}
}

var errReplQuit = fmt.Errorf("quit")

func replEval(ix terndb.Index, cmd, rest string) error {
	switch cmd {
	case "quit", "exit", "q":
		return errReplQuit

	case "help", "?":
		fmt.Println(`add <text>          index text as a new document
search <query>      match all terms, best first
any <query>         match any term, best first
get <id>            print one document
delete <id...>      delete documents by id
walk                print every live document
stat                print index stats
compact             reclaim deleted docs
sync                flush the buffer to disk
quit                leave`)
		return nil

	case "add":
		if rest == "" {
			return fmt.Errorf("add needs text")
		}
		ds := []terndb.Document{{Text: rest}}
		if _, err := ix.Add(ds); err != nil {
			return err
		}
		fmt.Printf("added doc %d\n", ds[0].ID)
		return nil

	case "search", "any":
		var hits []terndb.Hit
		var err error
		if cmd == "any" {
			hits, err = ix.SearchAny(rest)
		} else {
			hits, err = ix.Search(rest)
		}
		if err != nil {
			return err
		}
		for _, hit := range hits {
			d, err := ix.Get(hit.Doc)
			if err != nil {
				return err
			}
			fmt.Printf("%8d  %7.3f  %s\n", hit.Doc, hit.Score, snippet(d.Text, 60))
		}
		fmt.Printf("%d results\n", len(hits))
		return nil

	case "get":
		id, err := parseDoc(rest)
		if err != nil {
			return err
		}
		d, err := ix.Get(id)
		if err != nil {
			return err
		}
		fmt.Println(d.Text)
		return nil

	case "delete":
		var ids []docs.ID
		for _, arg := range strings.Fields(rest) {
			id, err := parseDoc(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return fmt.Errorf("delete needs ids")
		}
		deleted, err := ix.Delete(ids)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d docs\n", deleted)
		return nil

	case "walk":
		return ix.Walk(func(d terndb.Document) error {
			fmt.Printf("%8d  %s\n", d.ID, snippet(d.Text, 68))
			return nil
		})

	case "stat":
		stat, err := ix.Stat()
		if err != nil {
			return err
		}
		next, err := ix.NextDoc()
		if err != nil {
			return err
		}
		fmt.Printf("segments=%d docs=%d deleted=%d size=%d next=%d\n",
			stat.Segments, stat.Docs, stat.Deleted, stat.Size, next)
		return nil

	case "compact":
		stats, err := ix.Compact()
		if err != nil {
			return err
		}
		fmt.Printf("compacted %d segments, removed %d, dropped %d docs, reclaimed %d bytes\n",
			stats.Segments, stats.Removed, stats.Docs, stats.Reclaimed)
		return nil

	case "sync":
		return ix.Sync()

	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func parseDoc(s string) (docs.ID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return docs.Invalid, fmt.Errorf("bad doc id %q", s)
	}
	return docs.ID(v), nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".terndb_history"
	}
	return filepath.Join(home, ".terndb_history")
}

func writeHistory(line *liner.State) {
	if f, err := os.Create(historyPath()); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}
