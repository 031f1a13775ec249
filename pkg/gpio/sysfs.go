package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const SysfsRoot = "/sys/class/gpio"

// ResetEnv names the environment variable holding the default reset pin.
const ResetEnv = "MM_RESET_PIN"

const DefaultResetTime = 50 * time.Millisecond

// Sysfs drives a pin through the legacy sysfs gpio interface.
type Sysfs struct {
	root string
	pin  int
}

func NewSysfs(root string, pin int) *Sysfs {
	if root == "" {
		root = SysfsRoot
	}
	return &Sysfs{root: root, pin: pin}
}

func (g *Sysfs) Pin() int {
	return g.pin
}

func (g *Sysfs) dir() string {
	return filepath.Join(g.root, fmt.Sprintf("gpio%d", g.pin))
}

func (g *Sysfs) write(path string, val string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, err = f.WriteString(val)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("gpio%d: writing %s: %w", g.pin, path, err)
	}
	return f.Close()
}

func (g *Sysfs) Exported() bool {
	st, err := os.Stat(g.dir())
	return err == nil && st.IsDir()
}

func (g *Sysfs) Export() error {
	if g.Exported() {
		return nil
	}
	return g.write(filepath.Join(g.root, "export"), strconv.Itoa(g.pin))
}

func (g *Sysfs) Unexport() error {
	if !g.Exported() {
		return nil
	}
	return g.write(filepath.Join(g.root, "unexport"), strconv.Itoa(g.pin))
}

// SetDirection accepts "in" or "out".
func (g *Sysfs) SetDirection(d string) error {
	return g.write(filepath.Join(g.dir(), "direction"), d)
}

func (g *Sysfs) SetValue(v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return g.write(filepath.Join(g.dir(), "value"), val)
}

// Pulse drives the pin low for d, then releases it and waits d again. The pin is
// unexported afterwards, also when driving it failed.
func (g *Sysfs) Pulse(d time.Duration) error {
	err := g.Export()
	if err != nil {
		return err
	}
	err = g.drive(d)
	if err != nil {
		_ = g.Unexport()
		return err
	}
	return g.Unexport()
}

func (g *Sysfs) drive(d time.Duration) error {
	err := g.SetDirection("out")
	if err != nil {
		return err
	}
	err = g.SetValue(false)
	if err != nil {
		return err
	}
	time.Sleep(d)
	err = g.SetDirection("in")
	if err != nil {
		return err
	}
	time.Sleep(d)
	return nil
}

// PinFromEnv returns the reset pin named by ResetEnv.
func PinFromEnv() (int, error) {
	val, ok := os.LookupEnv(ResetEnv)
	if !ok {
		return 0, fmt.Errorf("couldn't identify GPIO, pass it explicitly or export %s", ResetEnv)
	}
	return strconv.Atoi(val)
}
