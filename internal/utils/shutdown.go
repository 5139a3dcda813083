package utils

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const shutdownGrace = 15 * time.Second

// ShutdownManager cancels the process context on SIGINT/SIGTERM, runs the
// registered shutdown tasks within a grace period, and then releases Wait.
// Process exit stays with the caller.
type ShutdownManager struct {
	cancelFunc    context.CancelFunc
	shutdownTasks []func(context.Context) error
	mu            sync.Mutex
	done          chan struct{}
}

func NewShutdownManager(ctx context.Context) (context.Context, *ShutdownManager) {
	ctx, cancel := context.WithCancel(ctx)
	return ctx, &ShutdownManager{
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}
}

func (sm *ShutdownManager) Register(task func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownTasks = append(sm.shutdownTasks, task)
}

func (sm *ShutdownManager) StartListening() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("[SHUTDOWN] Received signal: %v", sig)
		sm.cancelFunc()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		sm.mu.Lock()
		tasks := sm.shutdownTasks
		sm.mu.Unlock()
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				log.Printf("[SHUTDOWN] Error during shutdown: %v", err)
			}
		}

		log.Println("[SHUTDOWN] Graceful shutdown complete")
		close(sm.done)
	}()
}

// Wait blocks until a signal has arrived and every shutdown task has run.
func (sm *ShutdownManager) Wait() {
	<-sm.done
}
