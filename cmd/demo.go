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
	"fmt"

	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/session"
	"bennypowers.dev/idekit/update"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runDemo opens a session over the given sources dir, runs one compile
// cycle, and reports what the compiler found.
func runDemo(cmd *cobra.Command, args []string) error {
	cfg := session.Config{
		WorkingDir:    viper.GetString("workingDir"),
		DataDir:       viper.GetString("dataDir"),
		TempDir:       viper.GetString("tempDir"),
		StaticOptions: viper.GetStringSlice("staticOptions"),
	}
	if len(args) > 0 {
		cfg.SourcesDir = args[0]
	}

	s, err := session.Init(cfg)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := s.Shutdown(); err != nil {
			logging.Debug("shutdown: %v", err)
		}
	}()

	if viper.GetBool("generateCode") {
		// No file changes; only the code-generation flag.
		s, err = s.UpdateFiles(update.GenerateCode(true))
		if err != nil {
			return err
		}
	}

	handle, err := s.UpdateSession()
	if err != nil {
		return err
	}
	for {
		p, ok := handle.Next()
		if !ok {
			break
		}
		logging.Info("[%d] %s", p.Step, p.Message)
	}
	s, err = handle.Wait()
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	diagnostics, err := s.GetSourceErrors()
	if err != nil {
		return err
	}
	loaded, err := s.GetLoadedModules()
	if err != nil {
		return err
	}

	for _, d := range diagnostics {
		if d.IsError() {
			pterm.Error.Println(d.String())
		} else {
			pterm.Warning.Println(d.String())
		}
	}
	logging.Success("loaded %d module(s)", len(loaded))
	for _, module := range loaded {
		pterm.Info.Println("  " + module)
	}

	for _, d := range diagnostics {
		if d.IsError() {
			return fmt.Errorf("compilation reported errors")
		}
	}
	return nil
}
