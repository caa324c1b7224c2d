/*
Copyright 2025 Geocell Labs Authors.

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

	"github.com/geocell-labs/coverage"
	"github.com/geocell-labs/coverage/config"
	"github.com/geocell-labs/coverage/internal/notification"
)

// CLI represents the command-line application, encapsulating the root Cobra command.
type CLI struct {
	cmd *cobra.Command // Root command for the CLI application
}

// coverageInstance holds the pipeline instance and its configuration.
// This is used to store the runtime instance and configuration globally within the application.
type coverageInstance struct {
	cvg *coverage.Coverage    // Pipeline object initialized from configuration
	cnf *config.Configuration // Configuration object holding runtime settings
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec) // Log the recovered panic
		os.Exit(1)        // Exit the program with an error status
	}
}

// preRun sets up the configuration and initializes the pipeline before running any command.
// It ensures that the configuration is loaded and the pipeline is wired to Redis properly.
func preRun(app *coverageInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Initialize configuration from the specified configuration file.
		err := config.InitConfig("coverage.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		// Fetch the configuration settings.
		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// Initialize the pipeline using the fetched configuration.
		newCoverage, err := coverage.NewCoverage()
		if err != nil {
			notification.NotifyError(err) // Notify via the internal notification system
			log.Fatal(err)                // Log the fatal error
		}

		// Assign the new pipeline instance and configuration to the app struct.
		app.cvg = newCoverage
		app.cnf = cnf

		return nil
	}
}

// NewCLI creates the command-line interface for the coverage service.
// It sets up the root command and subcommands for the server, workers and backups.
func NewCLI() *CLI {
	var configFile string // Configuration file path (defaults to ./coverage.json)
	b := &coverageInstance{}

	// Define the root command with usage and description.
	var rootCmd = &cobra.Command{
		Use:   "coverage",
		Short: "Geospatial signal coverage ingestion",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	// Add a persistent flag to the root command for specifying the config file.
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./coverage.json", "Configuration file for the coverage service")

	// Set the persistent pre-run hook to initialize the app and config before executing any command.
	rootCmd.PersistentPreRunE = preRun(b)

	// Add various subcommands to the root command.
	rootCmd.AddCommand(serverCommands(b)) // Command for starting the API server
	rootCmd.AddCommand(workerCommands(b)) // Command for worker processes
	rootCmd.AddCommand(backupCommands(b)) // Command for coverage snapshots

	return &CLI{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
// It serves as the main entry point for the CLI application.
func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err) // Print any errors that occur
		os.Exit(1)                   // Exit the program with an error status
	}
}

// main is the main function and the entry point for the application.
// It recovers from any panic, initializes the CLI, and executes it.
func main() {
	defer recoverPanic() // Ensure that any panic is handled gracefully

	cli := NewCLI()  // Create the CLI application
	cli.executeCLI() // Execute the CLI commands
}
