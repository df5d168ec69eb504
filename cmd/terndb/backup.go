package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
)

var backupCmd = &cobra.Command{
	Use:   "backup <target>",
	Short: "Copy the index to another directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := terndb.Backup(viper.GetString("path"), args[0]); err != nil {
			return err
		}
		fmt.Printf("backed up to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
