package hubbot

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Restart replaces the running process image with a fresh execution of
// the same binary and arguments. This is how a bot picks up new code:
// tear everything down, then re-exec. The cleanup functions run first so
// the connection and any child workers die before the image goes away;
// cleanup failures are reported but do not abort the restart.
//
// On success Restart does not return.
func Restart(cleanup ...func() error) error {
	var cleanupErr error
	for _, fn := range cleanup {
		if err := fn(); err != nil && cleanupErr == nil {
			cleanupErr = err
		}
	}
	if cleanupErr != nil {
		fmt.Fprintf(os.Stderr, "restart: cleanup: %v\n", cleanupErr)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("restart: resolve executable: %w", err)
	}
	return unix.Exec(exe, os.Args, os.Environ())
}
