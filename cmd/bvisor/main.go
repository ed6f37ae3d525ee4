//
// Copyright 2026 The bvisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bvisor/bvisor/seccomp"
	"github.com/bvisor/bvisor/state"
)

const (
	usage = `in-process Linux sandbox

bvisor runs a guest command natively on the host while intercepting and
virtualizing its syscalls through a kernel syscall-notifier filter.
`
)

// Globals to be populated at build time during Makefile processing.
var (
	version  string // extracted from VERSION file
	commitId string // latest git commit-id
	builtAt  string // build time
)

// bvisor exit handler goroutine: on a terminating signal, removes the
// supervisor's sandbox from the DB and tears down its overlay.
func exitHandler(signalChan chan os.Signal, sdb *state.SandboxDB, sup *seccomp.Supervisor) {

	s := <-signalChan
	logrus.Warnf("Caught OS signal: %s", s)

	if ovl := sup.Overlay(); ovl != nil {
		sdb.Remove(ovl.UID())
		ovl.Teardown()
	}

	logrus.Info("Exiting.")
	os.Exit(1)
}

// bvisor main function.
func main() {

	// The guest branch of the bootstrap re-execs this binary; divert to the
	// guest init before the cli machinery touches anything.
	if os.Getenv(seccomp.GuestInitEnvKey) != "" {
		os.Unsetenv(seccomp.GuestInitEnvKey)
		if err := seccomp.GuestInit(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "bvisor: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := cli.NewApp()
	app.Name = "bvisor"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log",
			Value: "/dev/stderr",
			Usage: "log file path",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
	}

	// show-version specialization.
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("bvisor\n"+
			"\tversion: \t%s\n"+
			"\tcommit: \t%s\n"+
			"\tbuilt at: \t%s\n",
			c.App.Version, commitId, builtAt)
	}

	// Define 'debug' and 'log' settings.
	app.Before = func(ctx *cli.Context) error {

		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(
				path,
				os.O_CREATE|os.O_WRONLY|os.O_APPEND,
				0666,
			)
			if err != nil {
				logrus.Fatalf("Error opening log file %v: %v. Exiting ...", path, err)
				return err
			}

			logrus.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
			})
			logrus.SetOutput(f)
		}

		switch logLevel := ctx.GlobalString("log-level"); logLevel {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option '%v' not recognized. Exiting ...", logLevel)
		}

		return nil
	}

	// bvisor main-loop execution.
	app.Action = func(ctx *cli.Context) error {
		if !ctx.Args().Present() {
			return cli.NewExitError("no guest command given", 1)
		}

		var sandboxDB = state.NewSandboxDB()

		sup, err := seccomp.NewSupervisor()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		if err := sandboxDB.Add(sup.Overlay()); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer sandboxDB.Remove(sup.Overlay().UID())

		var signalChan = make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		go exitHandler(signalChan, sandboxDB, sup)

		if err := sup.Run([]string(ctx.Args())); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
