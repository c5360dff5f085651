// navalsim is a terminal participant in a naval engine-room training session.
// One participant hosts and shares the printed token; the rest of the crew
// joins with it. Commands are read from stdin, one per line.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/app"
	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/config"
	"github.com/DoyleJ11/naval-sim/internal/logging"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadParticipant()
	if err != nil {
		return err
	}

	var iceURLs []string
	flags := pflag.NewFlagSet("navalsim", pflag.ContinueOnError)
	flags.StringVar(&cfg.SignalURL, "signal", cfg.SignalURL, "rendezvous websocket url")
	flags.StringSliceVar(&iceURLs, "ice", cfg.ICEServers, "STUN/TURN urls (default: public STUN)")
	flags.DurationVar(&cfg.SignalingTimeout, "timeout", cfg.SignalingTimeout, "signaling timeout")
	flags.StringVarP(&cfg.Name, "name", "n", cfg.Name, "display name")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&cfg.Development, "dev", cfg.Development, "human-readable logs")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ice := broker.DefaultICEConfig()
	if len(iceURLs) > 0 {
		ice = broker.ICEConfigFromURLs(iceURLs)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network := broker.NewRTCNetwork(cfg.SignalURL, ice, logger.Named("rtc"))
	ctrl := app.New(ctx, network,
		app.WithLogger(logger),
		app.WithBrokerOptions(broker.WithSignalingTimeout(cfg.SignalingTimeout)),
	)
	defer ctrl.Close()
	ctrl.EnterLobby()

	out := &syncWriter{w: os.Stdout}
	ctrl.Subscribe(func(e types.Event) { printEvent(out, e) })

	sh := &shell{ctrl: ctrl, out: out, name: cfg.Name}
	fmt.Fprintln(out, "navalsim ready. type help for commands.")

	// The reader is not joined: a blocked read on stdin cannot be cancelled.
	lines := make(chan string)
	go func() {
		defer close(lines)
		if err := readLines(ctx, os.Stdin, lines); err != nil {
			logger.Warn("reading stdin", zap.Error(err))
		}
	}()

	defer ctrl.Leave()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				logger.Debug("command failed", zap.String("line", line), zap.Error(err))
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines sends each line of r to lines until r ends or ctx is done.
func readLines(ctx context.Context, r io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

// syncWriter serializes writes from the command loop and remote events.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
