package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "scrobbled",
		Short: "scrobbled - import and search your listening history",
		Long: `scrobbled pulls play history from Last.fm/Libre.fm (or from JSONL/CSV/TSV
files) into a local SQLite database, and keeps a full-text search index of
artists, albums and tracks in sync with it.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scrobbled/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "scrobble database file (default is the data directory)")
	rootCmd.PersistentFlags().String("auth", "", "auth file (default is the data directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("auth", rootCmd.PersistentFlags().Lookup("auth"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath(dataDir())
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("SCROBBLED")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// dataDir returns the directory holding the default database and auth file
func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scrobbled")
	}
	return "."
}

// dbPath resolves the database path from flags/config, falling back to the
// data directory
func dbPath() string {
	if path := viper.GetString("db"); path != "" {
		return path
	}
	return filepath.Join(dataDir(), "scrobbles.db")
}

// authPath resolves the auth file path from flags/config
func authPath() string {
	if path := viper.GetString("auth"); path != "" {
		return path
	}
	return filepath.Join(dataDir(), "auth.json")
}

// applyLogFlags sets the log level from the global flags
func applyLogFlags() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
