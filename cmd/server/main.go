package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	relay "github.com/bt-bridge/interpreter-relay"
	"github.com/bt-bridge/interpreter-relay/shared"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	transcriptPath := flag.String("transcript", "", "append conversation transcripts to this file")
	flag.Parse()

	cfg, err := shared.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var logger shared.LoggerAdapter
	if cfg.Log.File != "" {
		logger = shared.NewTeeLogger(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays, cfg.Log.Compress)
	} else {
		logger = shared.NewStdLogger()
	}

	var transcript *shared.Transcript
	if *transcriptPath != "" {
		f, err := os.OpenFile(*transcriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("opening transcript file: %v", err)
		}
		transcript, err = shared.NewTranscript(shared.NewWriteCloser(f))
		if err != nil {
			log.Fatalf("creating transcript sink: %v", err)
		}
		defer func() { _ = transcript.Close() }()
	}

	srv, err := relay.NewServer(logger, cfg, transcript)
	if err != nil {
		log.Fatalf("constructing server: %v", err)
	}

	logger.Info("listening", zap.String("addr", cfg.Listen))
	if err := http.ListenAndServe(cfg.Listen, srv.Handler()); err != nil {
		logger.Error("server stopped", err)
		os.Exit(1)
	}
}
