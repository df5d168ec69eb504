package main

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

var addCmd = &cobra.Command{
	Use:   "add [file...]",
	Short: "Index text files as documents",
	Long: `Add indexes each file argument as a single document and prints the
id it was assigned. With --watch it keeps running after that, indexing
files as they are created or changed in the watched directory. A
changed file replaces its previous document.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, _ := cmd.Flags().GetBool("sync")
		watchDir, _ := cmd.Flags().GetString("watch")

		if len(args) == 0 && watchDir == "" {
			return cmd.Usage()
		}

		ix, err := terndb.Open(viper.GetString("path"), terndb.Options{
			CreateDirs: true,
			AutoSync:   sync,
		})
		if err != nil {
			return err
		}
		defer ix.Close()

		for _, path := range args {
			id, err := addFile(ix, path)
			if err != nil {
				return err
			}
			fmt.Printf("%d: %s\n", id, path)
		}

		if watchDir != "" {
			return watch(ix, watchDir)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().String("watch", "", "keep running and index files changed in this directory")
	addCmd.Flags().Bool("sync", false, "flush the buffer to disk after each add")

	rootCmd.AddCommand(addCmd)
}

func addFile(ix terndb.Index, path string) (docs.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return docs.Invalid, err
	}

	ds := []terndb.Document{{Text: string(data)}}
	if _, err := ix.Add(ds); err != nil {
		return docs.Invalid, err
	}
	return ds[0].ID, nil
}

func watch(ix terndb.Index, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	fmt.Printf("watching %s\n", dir)

	seen := map[string]docs.ID{}
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if old, ok := seen[ev.Name]; ok {
				if _, err := ix.Delete([]docs.ID{old}); err != nil {
					return err
				}
				delete(seen, ev.Name)
			}

			id, err := addFile(ix, ev.Name)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			seen[ev.Name] = id
			fmt.Printf("%d: %s\n", id, ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
