package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zulandar/perfumery/internal/api"
	"github.com/zulandar/perfumery/internal/db"
	"github.com/zulandar/perfumery/internal/image"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog HTTP API",
		Long:  "Serves the perfume and image API, the public image files, /healthz and /metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if port > 0 {
		cfg.Server.Port = port
	}
	log := newLogger(cmd, cfg, "api")

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := db.Ping(ctx, gormDB); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	images := image.NewService(gormDB, image.Options{
		PublicDir:    cfg.Public.Dir,
		PublicPrefix: cfg.Public.Prefix,
		BasePath:     cfg.Images.BasePath,
		MaxBytes:     cfg.Server.MaxUploadBytes,
	}, log)

	return api.Start(ctx, api.StartOpts{
		Deps: api.Deps{
			DB:             gormDB,
			Images:         images,
			Log:            log,
			Registry:       reg,
			PublicDir:      cfg.Public.Dir,
			PublicPrefix:   cfg.Public.Prefix,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		},
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Out:  cmd.OutOrStdout(),
	})
}
