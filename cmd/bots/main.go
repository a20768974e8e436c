// Command bots plays complete games against a server, for load and smoke
// testing. Each game is a set of bots: the first creates the session, the
// others join, the caller draws on a timer and every bot marks its card
// and claims as soon as the card is full.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"bingo/internal/logger"
)

func main() {
	server := pflag.String("server", "localhost:8080", "server host:port")
	games := pflag.Int("games", 1, "games played concurrently")
	players := pflag.Int("players", 3, "bots per game")
	interval := pflag.Duration("draw-interval", 200*time.Millisecond, "delay between draws")
	timeout := pflag.Duration("timeout", 5*time.Minute, "give up on a game after this long")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	log, err := logger.New(*level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := gameConfig{
		Server:       *server,
		Players:      *players,
		DrawInterval: *interval,
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for g := range *games {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()

			start := time.Now()
			winner, err := playGame(gctx, cfg, fmt.Sprintf("g%d", g), log)
			if err != nil {
				log.Error("game failed", zap.Int("game", g), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			log.Info("game finished", zap.Int("game", g), zap.String("winner", winner),
				zap.Duration("took", time.Since(start)))
		}()
	}
	wg.Wait()

	if failed > 0 {
		log.Error("some games failed", zap.Int("failed", failed), zap.Int("games", *games))
		os.Exit(1)
	}
}
