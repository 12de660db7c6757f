/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package cmd

import (
	"os"
	"path/filepath"

	"bennypowers.dev/idekit/internal/logging"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd opens a demo session over a sources directory: compile it,
// stream progress, then report diagnostics and loaded modules.
var rootCmd = &cobra.Command{
	Use:   "idekit [sources-dir]",
	Short: "Interactive compilation sessions over a persistent compiler worker",
	Long: `idekit keeps a long-running compiler worker behind a versioned session
handle. Clients push file updates in, trigger recompiles, observe typed
progress events, and query the structured errors and symbol information
computed by the last successful compile.

Invoked with a sources directory, it opens a demo session: one compile
of the directory's modules, with diagnostics and loaded modules printed
to the terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDemo,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	if viper.GetBool("verbose") {
		logging.SetDebugEnabled(true)
	}

	cfgFile := viper.GetString("configFile")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			pterm.Fatal.Printf("Unable to get current working directory: %v", err)
		}
		viper.AddConfigPath(filepath.Join(cwd, ".config"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("idekit")
	}
	if err := viper.ReadInConfig(); err == nil {
		logging.Debug("Using config file: %s", viper.ConfigFileUsed())
	}

	viper.AutomaticEnv()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default is $CWD/.config/idekit.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging output")
	rootCmd.Flags().String("working-dir", "", "directory for compiler intermediates")
	rootCmd.Flags().String("data-dir", "", "runtime working directory for executed programs")
	rootCmd.Flags().String("temp-dir", "", "scratch directory for build logs and docs")
	rootCmd.Flags().Bool("generate-code", false, "compile with code generation enabled")
	rootCmd.Flags().StringSlice("ghc-option", nil, "compiler option (repeatable)")
	viper.BindPFlag("configFile", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("workingDir", rootCmd.Flags().Lookup("working-dir"))
	viper.BindPFlag("dataDir", rootCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("tempDir", rootCmd.Flags().Lookup("temp-dir"))
	viper.BindPFlag("generateCode", rootCmd.Flags().Lookup("generate-code"))
	viper.BindPFlag("staticOptions", rootCmd.Flags().Lookup("ghc-option"))
}
