package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wgdzlh/orthoveg"
	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"go.uber.org/zap"
)

func listProfiles() {
	for _, z := range orthoveg.DefaultProfiles() {
		fmt.Printf("%s (%s)\n  %s\n", utils.ZoneTitle(z.Name), z.Name, z.Description)
		for i, c := range z.Conditions {
			fmt.Printf("    %d. %s\n", i+1, c)
		}
	}
	fmt.Println()
	for _, idx := range orthoveg.Indices {
		fmt.Printf("%-7s %s\n", idx, orthoveg.Suggestions(idx))
	}
}

func main() {
	cfgFile := flag.String("config", "", "YAML run configuration.")
	inputs := flag.String("in", "", "Comma separated input rasters (NIR,R,G,B band order).")
	outDir := flag.String("out", "", "Output directory.")
	boundary := flag.String("boundary", "", "Optional shapefile used to crop inputs.")
	profiles := flag.String("profiles", "", "Comma separated predefined threshold profiles.")
	zonesFile := flag.String("zones", "", "YAML file with zone definitions.")
	workers := flag.Int("n", 0, "Maximum number of units processed concurrently.")
	logLevel := flag.String("log", "", "Log level (debug, info, warn, error).")
	list := flag.Bool("list", false, "List predefined profiles and index suggestions, then exit.")
	flag.Parse()

	if *list {
		listProfiles()
		return
	}

	var (
		cfg orthoveg.RunConfig
		err error
	)
	if *cfgFile != "" {
		if cfg, err = orthoveg.LoadRunConfig(*cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(2)
		}
	} else {
		cfg.ApplyEnv()
	}
	if v := utils.SplitList(*inputs); len(v) > 0 {
		cfg.Inputs = v
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *boundary != "" {
		cfg.Boundary = *boundary
	}
	if v := utils.SplitList(*profiles); len(v) > 0 {
		cfg.Profiles = v
	}
	if *zonesFile != "" {
		cfg.ZonesFile = *zonesFile
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.LogLevel != "" || cfg.LogJSON {
		if err = log.Init(cfg.LogLevel, cfg.LogJSON); err != nil {
			fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
			os.Exit(2)
		}
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g := orthoveg.NewGdalToolbox(orthoveg.WithWorkers(cfg.Workers))
	defer g.Close()
	res, err := g.Run(ctx, cfg)
	if err != nil {
		log.Error("processing failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	for _, idx := range orthoveg.Indices {
		if p, ok := res.IndexPaths[idx]; ok {
			fmt.Printf("%-7s %s\n", idx, p)
		}
	}
	for name, m := range res.ZoneMaps {
		st := res.ZoneStats[name]
		fmt.Printf("%s: %s px, %.2f%%, %.2f ha -> %s\n", utils.ZoneTitle(name), utils.GroupInt(st.DetectedPixels), st.Percentage, st.AreaHa, m)
	}
	fmt.Printf("report: %s\n", res.Report)
}
