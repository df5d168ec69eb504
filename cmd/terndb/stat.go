package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stat, err := terndb.Stat(viper.GetString("path"))
		if err != nil {
			return err
		}

		fmt.Printf("segments: %d\n", stat.Segments)
		fmt.Printf("docs:     %d\n", stat.Docs)
		fmt.Printf("deleted:  %d\n", stat.Deleted)
		fmt.Printf("size:     %d bytes\n", stat.Size)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
