//
// Copyright 2019-2020 Nestybox, Inc.
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
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/rdma-intercept/rdma-intercept/coordinator"
	"github.com/rdma-intercept/rdma-intercept/domain"
	"github.com/rdma-intercept/rdma-intercept/internal/pidfile"
	"github.com/rdma-intercept/rdma-intercept/ipc"
	"github.com/rdma-intercept/rdma-intercept/probe"
	"github.com/rdma-intercept/rdma-intercept/shmem"
)

const (
	runDir  string = "/run/rdma-intercept"
	pidPath string = runDir + "/rdma-interceptd.pid"
	usage   string = `rdma-interceptd coordinator daemon

rdma-interceptd owns the authoritative shared memory counter region,
synchronizes it against the kernel probe maps, and serves the legacy
line protocol used by out-of-tree tooling and by the interposer's
shared-memory-unavailable fallback path.
`
)

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

func exitHandler(signalChan chan os.Signal, d *coordinator.Daemon, prof interface{ Stop() }) {
	var printStack = false

	s := <-signalChan
	logrus.Warnf("rdma-interceptd caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	switch s {
	case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGSEGV:
		printStack = true
	}

	if printStack {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	d.Stop()

	if prof != nil {
		prof.Stop()
	}

	if err := pidfile.Destroy(pidPath); err != nil {
		logrus.Warnf("failed to destroy pid file: %v", err)
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	}
	return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
}

func setupRunDir() error {
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %s", runDir, err)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "rdma-interceptd"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Value: ipc.DefaultSockPath,
			Usage: "unix socket path for the legacy line protocol",
		},
		cli.StringFlag{
			Name:  "probe-dir",
			Value: probe.DefaultPinDir,
			Usage: "directory holding the pinned kernel probe map files",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("rdma-interceptd\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
			log.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info", "":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option '%v' not recognized. Exiting ...", ctx.GlobalString("log-level"))
		}

		flag.Parse()
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating rdma-interceptd ...")

		if err := pidfile.Check("rdma-interceptd", pidPath); err != nil {
			return err
		}
		if err := setupRunDir(); err != nil {
			return err
		}

		maxQP, maxMR, maxMemory := coordinator.StartupLimits()

		region, err := shmem.Init(domain.SharedStateName, maxQP, maxMR, maxMemory)
		if err != nil {
			return fmt.Errorf("failed to initialize shared memory region: %v", err)
		}

		probeReader := probe.NewFileReader(ctx.GlobalString("probe-dir"))
		ipcServer := ipc.NewServer(ctx.GlobalString("socket"), region)

		d := coordinator.New(region, probeReader, ipcServer)

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, d, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)

		if err := pidfile.Create("rdma-interceptd", pidPath); err != nil {
			return fmt.Errorf("failed to create pid file: %s", err)
		}

		logrus.Info("Ready ...")

		if err := d.Run(); err != nil {
			logrus.Errorf("coordinator exited with error: %v", err)
		}

		if err := pidfile.Destroy(pidPath); err != nil {
			logrus.Warnf("failed to destroy pid file: %v", err)
		}
		logrus.Info("Done.")

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
