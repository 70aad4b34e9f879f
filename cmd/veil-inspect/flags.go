package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// options holds every flag veil-inspect accepts.
type options struct {
	target           string
	json             bool
	watch            bool
	interval         time.Duration
	heapProfile      string
	goroutineProfile string
	version          bool
}

func parseFlags() *options {
	opts := &options{}
	fs := flag.NewFlagSet("veil-inspect", flag.ExitOnError)
	fs.StringVar(&opts.target, "target", "http://127.0.0.1:9190", "base URL of the veild debug endpoint")
	fs.BoolVar(&opts.json, "json", false, "print the raw snapshot as JSON instead of a formatted summary")
	fs.BoolVar(&opts.watch, "watch", false, "poll the snapshot endpoint repeatedly instead of a single dump")
	fs.DurationVar(&opts.interval, "interval", 2*time.Second, "polling interval in watch mode")
	fs.StringVar(&opts.heapProfile, "heap-profile", "", "download a heap pprof profile to this path and exit")
	fs.StringVar(&opts.goroutineProfile, "goroutine-profile", "", "download a goroutine pprof profile to this path and exit")
	fs.BoolVar(&opts.version, "version", false, "print the build version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}
