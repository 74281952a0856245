// Package onewire reads DS18B20 temperature probes through the Linux w1 sysfs interface.
package onewire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultDeviceDir is where the w1 bus exposes its slaves
const DefaultDeviceDir = "/sys/bus/w1/devices"

// DS18B20 family code prefix
const familyPrefix = "28-"

var (
	ErrNotFound  = errors.New("no DS18B20 found")
	ErrCRC       = errors.New("DS18B20 CRC failure")
	ErrMalformed = errors.New("DS18B20 malformed result")
)

// Thermometer is one DS18B20 probe
type Thermometer struct {
	path string
}

// Discover returns the first DS18B20 under dir, in name order
func Discover(dir string) (*Thermometer, error) {
	if dir == "" {
		dir = DefaultDeviceDir
	}
	matches, err := filepath.Glob(filepath.Join(dir, familyPrefix+"*"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	sort.Strings(matches)
	return New(filepath.Join(matches[0], "w1_slave")), nil
}

// New returns a thermometer reading the given w1_slave file
func New(path string) *Thermometer {
	return &Thermometer{path: path}
}

// Path returns the w1_slave file
func (t *Thermometer) Path() string {
	return t.path
}

// Read returns the temperature in degrees Celsius
func (t *Thermometer) Read(_ context.Context) (float64, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return 0, fmt.Errorf("unable to open %s: %w", t.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	// "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES"
	if !scanner.Scan() {
		return 0, fmt.Errorf("%w: unexpected EOF", ErrMalformed)
	}
	if !strings.HasSuffix(strings.TrimSpace(scanner.Text()), "YES") {
		return 0, ErrCRC
	}

	// "72 01 4b 46 7f ff 0e 10 57 t=23125"
	if !scanner.Scan() {
		return 0, fmt.Errorf("%w: unexpected EOF", ErrMalformed)
	}
	line := scanner.Text()
	i := strings.Index(line, "t=")
	if i < 0 {
		return 0, fmt.Errorf("%w: no t=", ErrMalformed)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(line[i+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return float64(milli) / 1000, scanner.Err()
}
