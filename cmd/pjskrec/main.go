package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/pjsk-record/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "pjskrec",
		Short: "pjsk-record - keep a log of your Project SEKAI attempts",
		Long: `pjskrec records rhythm-game score attempts per user and song.

It serves a small web front end for submitting and browsing attempts, keeps
a local copy of the song catalog, chart and rating documents up to date, and
derives accuracy and play rating for every stored attempt.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
			util.SetColors(util.IsTerminal(os.Stderr.Fd()))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/pjskrec.yaml)")
	rootCmd.PersistentFlags().String("db", defaultDBPath, "record database file")
	rootCmd.PersistentFlags().String("data-dir", defaultDataDir, "directory holding the reference documents")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("pjskrec")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("PJSK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	defer util.Sync()

	if err := rootCmd.Execute(); err != nil {
		util.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
