package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tern-dev/terndb"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "terndb",
	Short: "terndb is an embedded full-text search index",
	Long: `Terndb indexes plain text documents into mmap backed segment files
and answers ranked term queries over them. All commands work against
the index directory given by --path, the TERNDB_PATH env var or the
config file.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.terndb.yaml)")
	rootCmd.PersistentFlags().StringP("path", "p", "", "index directory")
	viper.BindPFlag("path", rootCmd.PersistentFlags().Lookup("path"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("path", "terndb")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigFile(filepath.Join(home, ".terndb.yaml"))
	}

	viper.SetEnvPrefix("terndb")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func openIndex(readonly bool) (terndb.Index, error) {
	return terndb.Open(viper.GetString("path"), terndb.Options{
		CreateDirs: !readonly,
		Readonly:   readonly,
	})
}
