package testutils

import (
	"bytes"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// SafeWriteBuffer collects output that may be written from more than one goroutine,
// like log lines and progress bars.
type SafeWriteBuffer struct {
	bufferLock sync.Mutex
	buffer     bytes.Buffer
}

func (swb *SafeWriteBuffer) Write(p []byte) (n int, err error) {
	swb.bufferLock.Lock()
	defer swb.bufferLock.Unlock()
	return swb.buffer.Write(p)
}

func (swb *SafeWriteBuffer) String() string {
	swb.bufferLock.Lock()
	defer swb.bufferLock.Unlock()
	return swb.buffer.String()
}

// CommandResult is the captured outcome of one command line.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes cmd with args and captures what it writes. execute runs the
// command, so callers can go through their own error mapping.
func Run(cmd *cobra.Command, execute func() error, args ...string) *CommandResult {
	var stdout, stderr SafeWriteBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := execute()

	return &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// ResetFlags puts every flag of cmd and its children back to its default so
// that a package level command can run again.
func ResetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		ResetFlags(c)
	}
}
