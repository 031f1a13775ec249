package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/loopholelabs/wlanctl/pkg/chip"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var (
	cmdTransraw = &cobra.Command{
		Use:   "transraw",
		Short: "Raw register and memory access over a direct chip transport",
		Long: `Read or write a register, copy chip memory to or from a file, or run the
transport self test (-T).`,
		Args: noArgs,
		RunE: runTransraw,
	}
)

var transrawAddr uint32
var transrawValue uint32
var transrawRead bool
var transrawFile string
var transrawSize int
var transrawTest bool
var transrawProgress bool

func init() {
	rootCmd.AddCommand(cmdTransraw)
	cmdTransraw.Flags().Uint32VarP(&transrawAddr, "addr", "a", 0, "Chip address")
	cmdTransraw.Flags().Uint32VarP(&transrawValue, "write", "w", 0, "Value to write to the register at addr")
	cmdTransraw.Flags().BoolVarP(&transrawRead, "read", "r", false, "Read from addr")
	cmdTransraw.Flags().StringVarP(&transrawFile, "file", "F", "", "File to copy to (-r) or from chip memory")
	cmdTransraw.Flags().IntVarP(&transrawSize, "size", "s", 0, "Bytes to read into the file")
	cmdTransraw.Flags().BoolVarP(&transrawTest, "test", "T", false, "Run the transport self test")
	cmdTransraw.Flags().BoolVarP(&transrawProgress, "progress", "p", false, "Show progress")
}

func checkTransrawArgs(cmd *cobra.Command) error {
	addr := cmd.Flags().Changed("addr")
	write := cmd.Flags().Changed("write")

	if transrawTest {
		if addr || write || transrawRead || transrawFile != "" || cmd.Flags().Changed("size") {
			return usagef("-T can't be combined with other operations")
		}
		return nil
	}
	if !addr {
		return usagef("an address (-a) is required")
	}
	if write && transrawRead {
		return usagef("-w and -r are exclusive")
	}
	if write && transrawFile != "" {
		return usagef("-w and -F are exclusive")
	}
	if !write && !transrawRead && transrawFile == "" {
		return usagef("nothing to do, give -w, -r or -F")
	}
	if transrawFile != "" && transrawRead && transrawSize <= 0 {
		return usagef("reading into a file needs a size (-s)")
	}
	if cmd.Flags().Changed("size") && (transrawFile == "" || !transrawRead) {
		return usagef("-s only applies to reading into a file (-r -F)")
	}
	return nil
}

// progressBar returns a byte counter bar and the function that finishes it.
func progressBar(name string, size int64) (func(int), func()) {
	if !transrawProgress {
		return nil, func() {}
	}
	p := mpb.New(
		mpb.WithOutput(color.Output),
		mpb.WithAutoRefresh(),
	)
	bar := p.AddBar(size,
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
			decor.CountersKiloByte("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
			decor.Name(" "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 60, decor.WCSyncWidth),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
	update := func(n int) {
		bar.IncrBy(n)
	}
	done := func() {
		// A failed copy leaves the bar short, so finish it before waiting.
		if !bar.Completed() {
			bar.Abort(false)
		}
		p.Wait()
	}
	return update, done
}

func runTransraw(cmd *cobra.Command, _ []string) error {
	err := checkTransrawArgs(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	return withSession(out, true, func(s *session) error {
		if !s.tr.Direct() {
			return fmt.Errorf("transraw: %w", chip.ErrNotDirect)
		}
		c := chip.New(s.tr, log)

		switch {
		case transrawTest:
			return c.TransportTest(func(r chip.TestResult) {
				status := color.GreenString("ok")
				if r.Err != nil {
					status = color.RedString("FAILED")
				}
				fmt.Fprintf(out, "%-40s %s\n", r.Name, status)
			})

		case transrawFile != "" && transrawRead:
			f, err := os.Create(transrawFile)
			if err != nil {
				return err
			}
			defer f.Close()
			update, done := progressBar("read", int64(transrawSize))
			err = c.ReadTo(f, transrawAddr, transrawSize, update)
			done()
			if err == nil {
				err = f.Sync()
			}
			if err != nil {
				_ = os.Remove(transrawFile)
				return err
			}
			return nil

		case transrawFile != "":
			f, err := os.Open(transrawFile)
			if err != nil {
				return err
			}
			defer f.Close()
			fi, err := f.Stat()
			if err != nil {
				return err
			}
			update, done := progressBar("write", fi.Size())
			n, err := c.WriteFrom(f, transrawAddr, update)
			done()
			if err != nil {
				return err
			}
			if log != nil {
				log.Debug().Str("file", transrawFile).Int("bytes", n).Msg("written to chip")
			}
			return nil

		case transrawRead:
			val, err := s.tr.RegRead(transrawAddr)
			if err != nil {
				return err
			}
			return report(out, fmt.Sprintf("0x%08x", transrawAddr), "value", fmt.Sprintf("0x%08x", val))

		default:
			return s.tr.RegWrite(transrawAddr, transrawValue)
		}
	})
}
