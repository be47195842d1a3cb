// Command discern analyzes a single image and prints the aggregated result
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"image-discerner/internal/app"
	"image-discerner/internal/config"
	"image-discerner/internal/logger"
	"image-discerner/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] image\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*configPath, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "discern:", err)
		os.Exit(1)
	}
}

func run(configPath, imagePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Log.Level)

	classifier, extractor, err := app.NewProviders(cfg.Vision, log)
	if err != nil {
		return err
	}
	engine, err := app.NewEngine(cfg.Fusion)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}

	svc := service.NewDiscernService(nil, classifier, extractor, engine, cfg.Vision.Timeout, log)
	res, err := svc.Analyze(context.Background(), service.AnalyzeRequest{
		ImageKey: filepath.Base(imagePath),
		Data:     data,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Result)
}
