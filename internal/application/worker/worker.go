// Package worker runs a background driver until the process is terminated.
package worker

import (
	"os"
	"os/signal"
	"syscall"
)

// Logger is a generic logging interface
type Logger interface {
	Info(args ...interface{})
	Fatal(args ...interface{})
}

// Driver is a background process with a lifecycle, such as the feeds
// refresher.
type Driver interface {
	Start() error
	Stop()
}

type worker struct {
	driver Driver
	logger Logger
}

// New creates worker wrapping the driver
func New(driver Driver, logger Logger) *worker {
	return &worker{driver: driver, logger: logger}
}

// Start launches the driver and blocks until a termination signal arrives,
// then stops it gracefully.
func (w *worker) Start() {
	if err := w.driver.Start(); err != nil {
		w.logger.Fatal("Failure starting driver: ", err)
	}
	// Kill signal handling
	done := make(chan struct{})
	signalChan := make(chan os.Signal, 1)
	go func() {
		<-signalChan
		close(done)
	}()
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	w.logger.Info("Started worker, terminate with 'kill <pid>'")
	<-done
	w.Stop()
}

func (w *worker) Stop() {
	w.driver.Stop()
	w.logger.Info("Stopped driver")
}
