package timer

import (
	"sync"
	"time"

	"github.com/luoqeng/asynckit/errs"
)

var (
	builtinOnce   sync.Once
	builtinDriver *Driver
	builtinErr    error
)

// Default returns the process-wide driver, lazily starting it on first
// use. A start failure is reported to the first caller as DriverInit and
// to every caller after that.
func Default() (*Driver, error) {
	builtinOnce.Do(func() {
		d, err := NewDriver(Options{})
		if err != nil {
			builtinErr = errs.DriverInit.Printf("%v", err)
			return
		}
		builtinDriver = d
	})
	return builtinDriver, builtinErr
}

// NewDelay prepares a delay on the default driver.
func NewDelay(dur time.Duration) (*Delay, error) {
	d, err := Default()
	if err != nil {
		return nil, err
	}
	return d.NewDelay(dur)
}

// Shutdown stops the default driver and joins its worker, for clean
// process or test teardown. The default driver does not restart; timer
// operations afterwards report DriverClosed.
func Shutdown() {
	d, err := Default()
	if err != nil {
		return
	}
	d.Shutdown()
}
