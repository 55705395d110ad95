/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/jerry-enebeli/formsync"
	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/database"
	"github.com/jerry-enebeli/formsync/internal/notification"
)

// Formsync is the CLI application around the root cobra command.
type Formsync struct {
	cmd *cobra.Command
}

// formsyncInstance holds the service and configuration built in preRun.
type formsyncInstance struct {
	formsync *formsync.Formsync
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *formsyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		f, err := setupFormsync(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.formsync = f
		app.cnf = cnf
		return nil
	}
}

func setupFormsync(cfg *config.Configuration) (*formsync.Formsync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	f, err := formsync.NewFormsync(db, formsync.WithConfig(cfg))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating formsync: %v", err)
	}
	return f, nil
}

func NewCLI() *Formsync {
	configFile := "./formsync.json"
	b := &formsyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "formsync",
		Short: "Offline form lifecycle and sync service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "Configuration file for formsync")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if b.formsync != nil {
			if err := b.formsync.Close(); err != nil {
				logrus.Warnf("error closing formsync: %v", err)
			}
		}
	}

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(purgeCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands(b))

	return &Formsync{cmd: rootCmd}
}

func (w Formsync) executeCLI() {
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
