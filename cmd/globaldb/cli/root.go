// Package cli implements the globaldb command-line surface: a thin operator
// tool over the library that exercises the full option record end to end.
// It is not part of the core's public contract.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/globaldb/globaldb"
)

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "globaldb",
	Short: "hierarchical key/value store over ordered byte-keyed backends",
	Long: `globaldb exposes a hierarchical, sparse, ordered associative array
("global") on top of a B-tree backend or a memory-mapped B+tree backend.

Keys on the command line are given as NAME [SUBSCRIPT...]; subscripts that
parse as decimal numbers are ordered numerically, everything else as a
string.`,
	SilenceUsage: true,
}

var cfgFile string

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file to load options from")
	pf.String("backend", "btree", "backend engine (btree or mmap)")
	pf.String("file", "", "database file")
	pf.String("key-type", "m", "key type mode (int, str or m)")
	pf.String("env-dir", "", "environment directory")
	pf.String("env-vars", "", "newline-separated K=V pairs set before the backend opens")
	pf.String("library-path", "", "backend shared library path (checked for existence)")
	pf.String("log-file", "", "trace log file")
	pf.Bool("log-errors", true, "log failed operations to the trace log")
	pf.Bool("log-entry", false, "log function entry to the trace log")
	pf.Bool("single-threaded", false, "disable the instance mutex")
	pf.Int("workers", 0, "worker pool size (0 = default)")

	cobra.OnInitialize(initConfig)
	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}

	RootCmd.AddCommand(versionCmd, getCmd, setCmd, deleteCmd, definedCmd,
		nextCmd, prevCmd, incrCmd, dumpCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintln(RootCmd.ErrOrStderr(), "config:", err)
		}
	}
	viper.SetEnvPrefix("GLOBALDB")
	viper.AutomaticEnv()
}

// openConn builds the option record from viper and opens a Connection.
func openConn() (*globaldb.Conn, error) {
	opt := globaldb.Options{
		Backend:       globaldb.BackendKind(viper.GetString("backend")),
		File:          viper.GetString("file"),
		KeyType:       globaldb.KeyType(viper.GetString("key-type")),
		EnvDir:        viper.GetString("env-dir"),
		EnvVars:       viper.GetString("env-vars"),
		LibraryPath:   viper.GetString("library-path"),
		Multithreaded: !viper.GetBool("single-threaded"),
		Workers:       viper.GetInt("workers"),
		LogFile:       viper.GetString("log-file"),
	}
	opt.LogOptions.Errors = viper.GetBool("log-errors")
	opt.LogOptions.FunctionEntry = viper.GetBool("log-entry")
	if opt.File == "" {
		return nil, fmt.Errorf("--file is required")
	}
	return globaldb.Open(opt)
}

// subsOf turns command-line arguments into a subscript tuple, auto-detecting
// stringified numbers the same way the library does.
func subsOf(args []string) []globaldb.Subscript {
	out := make([]globaldb.Subscript, len(args))
	for i, a := range args {
		out[i] = globaldb.Str(a)
	}
	return out
}
