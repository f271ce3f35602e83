package calib

import (
	"fmt"
	"strings"
)

// Flags selects calibration steps. The bit order is the execution order.
type Flags uint16

const (
	Memory Flags = 1 << iota
	NonLinearity
	Dark
	PPG
	Etalon
	Straylight
	Transmission
	BadPixel
	Coadd
	Exposure

	numSteps = iota
)

// All selects every step.
const All Flags = 1<<numSteps - 1

var letters = [numSteps]byte{'M', 'N', 'D', 'P', 'E', 'S', 'T', 'B', 'C', 'I'}

var names = [numSteps]string{
	"memory", "non-linearity", "dark", "ppg", "etalon",
	"straylight", "transmission", "bad-pixel", "coadd", "exposure",
}

// ParseFlags converts a string of step letters into Flags. "0" selects
// memory and non-linearity, "all" selects every step, "" and "none" select
// nothing.
func ParseFlags(s string) (Flags, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none":
		return 0, nil
	case "all":
		return All, nil
	}
	var f Flags
	for _, c := range strings.ToUpper(s) {
		if c == ',' || c == ' ' {
			continue
		}
		if c == '0' {
			f |= Memory | NonLinearity
			continue
		}
		i := strings.IndexRune(string(letters[:]), c)
		if i < 0 {
			return 0, fmt.Errorf("unknown calibration step %q in %q", c, s)
		}
		f |= 1 << i
	}
	return f, nil
}

// Has reports whether every step of o is selected.
func (f Flags) Has(o Flags) bool { return f&o == o }

// Steps returns the selected single-bit flags in execution order.
func (f Flags) Steps() []Flags {
	var out []Flags
	for i := 0; i < numSteps; i++ {
		if bit := Flags(1) << i; f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// String returns the letter form, in execution order.
func (f Flags) String() string {
	var sb strings.Builder
	for i := 0; i < numSteps; i++ {
		if f&(1<<i) != 0 {
			sb.WriteByte(letters[i])
		}
	}
	return sb.String()
}

// Name returns the step name of a single-bit flag.
func (f Flags) Name() string {
	for i := 0; i < numSteps; i++ {
		if f == 1<<i {
			return names[i]
		}
	}
	return f.String()
}
