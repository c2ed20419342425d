package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	must(logger.Init())
	must(trace.Init())

	cfg, err := config.Load(*cfgPath)
	must(err)
	if cfg.Mode == "DRY_RUN" {
		log.Println(">> DRY_RUN mode")
	}

	eng, st, err := buildEngine(cfg)
	must(err)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	must(eng.Start(ctx))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	statusTick := time.NewTicker(60 * time.Second)
	defer statusTick.Stop()

	log.Println("Engine started.")
	for {
		select {
		case <-statusTick.C:
			b, _ := json.Marshal(eng.Status())
			fmt.Println(string(b))
		case <-sigc:
			log.Println("Shutting down...")
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := eng.Stop(stopCtx); err != nil {
				log.Printf("stop error: %v", err)
			}
			stopCancel()
			_ = trace.Shutdown(context.Background())
			return
		case <-ctx.Done():
			return
		}
	}
}
