// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/text2cypher/services/api"
	"github.com/AleutianAI/text2cypher/services/text2cypher"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var (
		provider    string
		addr        string
		maxSessions int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve query generation over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			gen, err := a.newGenerator(provider, text2cypher.NewMetrics(a.registry))
			if err != nil {
				return err
			}

			if a.getenv("GIN_MODE") == "" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(gen, a.registry, a.log(), api.WithMaxSessions(maxSessions))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.Serve(ctx, addr, router, shutdownTimeout, a.log())
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "llama", "model provider")
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", api.DefaultMaxSessions, "cap on sessions created over HTTP (0 for no cap)")
	return cmd
}
