// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pjscruggs/slogboot"
	"github.com/pjscruggs/slogboot/internal/host"
	"github.com/pjscruggs/slogboot/supervisor"
)

func newRootCommand(code *int) *cobra.Command {
	var cfg host.Config
	var flushTimeout time.Duration
	var traceStderr bool

	rootCmd := &cobra.Command{
		Use:           "slogbootd",
		Short:         "Demonstration service for the slogboot logging lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []supervisor.Option{supervisor.WithStderr(cmd.ErrOrStderr())}
			var bootOpts []slogboot.Option
			bootOpts = append(bootOpts, slogboot.WithStdout(cmd.OutOrStdout()))
			if flushTimeout > 0 {
				bootOpts = append(bootOpts, slogboot.WithFlushTimeout(flushTimeout))
			}
			opts = append(opts, supervisor.WithBootstrapOptions(bootOpts...))
			if traceStderr {
				cfg.TraceWriter = cmd.ErrOrStderr()
			}
			*code = supervisor.Run(cmd.Context(), host.New(cfg), opts...)
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "HTTP listen address")
	flags.StringVar(&cfg.GRPCAddr, "grpc-addr", ":9090", "gRPC listen address")
	flags.StringVarP(&cfg.ConfigPath, "config", "c", "", "Configuration file (.toml, .yaml or .json)")
	flags.StringVar(&cfg.Environment, "environment", "", "Authoritative environment name; overrides APP_ENVIRONMENT after startup")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", host.DefaultShutdownTimeout, "Graceful shutdown bound for the servers")
	flags.DurationVar(&flushTimeout, "flush-timeout", 0, "Bound on draining logs at exit; overrides SLOGBOOT_FLUSH_TIMEOUT")
	flags.BoolVar(&traceStderr, "trace-stderr", false, "Export spans, log events included, as JSON on stderr")

	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the slogboot library version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), slogboot.GetVersion())
			return err
		},
	}
}
