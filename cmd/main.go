/*
Copyright 2025 Taskilo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taskilo/escrow"
	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/database"
	"github.com/taskilo/escrow/internal/notification"
)

// Escrow represents the CLI application, encapsulating the root Cobra command.
type Escrow struct {
	cmd *cobra.Command
}

// engineInstance holds the running Engine and its configuration so the
// subcommands share one initialized instance.
type engineInstance struct {
	engine *escrow.Engine
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Engine before any
// command runs.
func preRun(app *engineInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("escrow.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newEngine, err := setupEngine(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = newEngine
		app.cnf = cnf

		return nil
	}
}

// setupEngine connects the datasource and builds the Engine from it.
func setupEngine(cfg *config.Configuration) (*escrow.Engine, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newEngine, err := escrow.NewEngine(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("error creating engine: %v", err)
	}
	return newEngine, nil
}

// NewCLI creates the command-line interface for the escrow service.
func NewCLI() *Escrow {
	var configFile string
	e := &engineInstance{}

	var rootCmd = &cobra.Command{
		Use:   "escrow",
		Short: "Escrow payment lifecycle and reconciliation engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./escrow.json", "Configuration file for the escrow service")

	rootCmd.PersistentPreRunE = preRun(e)

	rootCmd.AddCommand(serverCommands(e))
	rootCmd.AddCommand(workerCommands(e))
	rootCmd.AddCommand(migrateCommands(e))
	rootCmd.AddCommand(backupCommands(e))
	rootCmd.AddCommand(configCommands())

	return &Escrow{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Escrow) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
