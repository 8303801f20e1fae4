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
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"github.com/rdma-intercept/rdma-intercept/ipc"
)

var version string

func main() {
	app := cli.NewApp()
	app.Name = "rdma-intercept-ctl"
	app.Usage = "operator CLI for the rdma-interceptd coordinator"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Value: ipc.DefaultSockPath,
			Usage: "unix socket path of the coordinator daemon",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "stats",
			Usage: "print global resource usage",
			Action: func(c *cli.Context) error {
				client := ipc.NewClient(c.GlobalString("socket"))
				resp, err := client.GetStats()
				if err != nil {
					return err
				}
				fmt.Print(resp)
				return nil
			},
		},
		{
			Name:      "proc-stats",
			Usage:     "print resource usage for a single pid",
			ArgsUsage: "<pid>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return fmt.Errorf("proc-stats requires exactly one pid argument")
				}
				pid, err := strconv.ParseInt(c.Args().Get(0), 10, 32)
				if err != nil {
					return fmt.Errorf("invalid pid %q: %v", c.Args().Get(0), err)
				}
				client := ipc.NewClient(c.GlobalString("socket"))
				resp, err := client.GetProcStats(int32(pid))
				if err != nil {
					return err
				}
				fmt.Print(resp)
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
