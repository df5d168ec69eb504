package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the index files",
	Long: `Check reads every segment back and verifies its checksums and skip
structure. With --recover it first removes leftovers of interrupted
writes, the way opening the index for writing would.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("path")

		if recover, _ := cmd.Flags().GetBool("recover"); recover {
			if err := terndb.Recover(dir); err != nil {
				return err
			}
		}

		if err := terndb.Check(dir); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("recover", false, "clean up interrupted writes before checking")

	rootCmd.AddCommand(checkCmd)
}
