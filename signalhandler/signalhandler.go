package signalhandler

import (
	"os"
	"os/signal"
	"syscall"

	"imagededup/logging"
)

// SetupHandler routes SIGINT/SIGTERM to the emergency stop. The first signal
// triggers a cooperative halt; a second one exits immediately for the case
// where in-flight work refuses to wind down.
func SetupHandler(emergencyStop func()) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.LogWarning("signal received, requesting emergency stop (send again to force exit)")
		emergencyStop()

		<-sigChan
		os.Exit(1)
	}()
}
