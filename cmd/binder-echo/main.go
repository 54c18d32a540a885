package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngrantham/go-binder"
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/logging"
	"github.com/ngrantham/go-binder/internal/loop"
)

const echoCookie = 1

func main() {
	var (
		device     = flag.String("device", "/dev/binder", "Binder device node to open")
		maxThreads = flag.Uint("max-threads", 0, "BINDER_SET_MAX_THREADS budget")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	echo := &binder.LocalObjectFunc{
		Handlers: map[uint32]binder.TransactionFunc{
			0: func(req *interfaces.Request) (*interfaces.Reply, int32) {
				logger.Info("echoing transaction", "bytes", len(req.Bytes()))
				reply := interfaces.NewReply()
				reply.WriteBytes(req.Bytes())
				return reply, loop.StatusOK
			},
		},
		OnIncrefs: func() { logger.Debug("echo object acquired a strong ref") },
		OnRelease: func() { logger.Debug("echo object released") },
	}

	client, err := binder.Open(binder.Config{
		DevicePath: *device,
		MaxThreads: uint32(*maxThreads),
	})
	if err != nil {
		logger.Error("failed to open binder device", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	client.Registry().RegisterLocal(echoCookie, echo)

	l := client.NewLoop()
	if err := l.EnterLooper(); err != nil {
		logger.Error("failed to enter looper", "error", err)
		os.Exit(1)
	}
	defer l.ExitLooper()

	fmt.Printf("binder-echo serving on %s (cookie %d)\n", *device, echoCookie)
	fmt.Printf("Press Ctrl+C to stop...\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		for {
			if err := l.Read(); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case err := <-done:
		logger.Error("looper exited", "error", err)
		os.Exit(1)
	}
}
