package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"parley/pkg/logger"
)

// abortRequest is the machine-readable record dropped next to a crash
// dump so operators and supervisors can see why the process exited.
type abortRequest struct {
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	CrashPath string `json:"crash_path,omitempty"`
	PID       int    `json:"pid"`
}

// Abort logs a fatal condition, writes diagnostics under the DB path and
// exits with a short countdown so logs and dumps flush first.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, derr := writeDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Error("crash_dump_written", "path", dumpPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(1 * time.Second)
	}
	os.Exit(2)
}

// writeDiagnostics writes a human-readable crash dump (environ plus
// goroutine stacks) under <db>/state/crash and an abort request pointing
// at it under <db>/state/abort. Both are written via temp file + rename
// so partial files never carry the final name.
func writeDiagnostics(dbPath, reason string, cause error) (string, error) {
	crashDir := "./crash"
	abortDir := "./abort"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	for _, d := range []string{crashDir, abortDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return "", fmt.Errorf("create %s: %w", d, err)
		}
	}

	ts := time.Now().UnixNano()
	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))
	err := atomicWrite(crashDir, dumpPath, func(f *os.File) error {
		fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
		fmt.Fprintf(f, "reason: %s\n", reason)
		fmt.Fprintf(f, "error: %v\n", cause)
		fmt.Fprintf(f, "\n--- environ ---\n")
		for _, e := range os.Environ() {
			fmt.Fprintln(f, e)
		}
		fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		_, werr := f.Write(buf[:n])
		return werr
	})
	if err != nil {
		return "", err
	}

	req := abortRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		CrashPath: dumpPath,
		PID:       os.Getpid(),
	}
	reqPath := filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts))
	err = atomicWrite(abortDir, reqPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(req)
	})
	if err != nil {
		return dumpPath, err
	}
	return dumpPath, nil
}

// atomicWrite streams content into a temp file in dir and renames it to
// dest on success.
func atomicWrite(dir, dest string, write func(*os.File) error) error {
	f, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	f.Sync()
	f.Close()
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	return os.Chmod(dest, 0o600)
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally logs a full goroutine stack dump before
// cancelling, since a broken pipe usually means a wedged downstream.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}
