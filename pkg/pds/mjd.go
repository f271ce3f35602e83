package pds

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bamiaux/iobit"
)

// MJDSize is the encoded size of an MJD in bytes.
const MJDSize = 12

var mjdEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// MJD is the modified Julian date 2000 used by all Envisat records.
type MJD struct {
	Days  int32
	Secs  uint32
	Musec uint32
}

// DecodeMJD reads an MJD from the first 12 bytes of buf.
func DecodeMJD(buf []byte) (MJD, error) {
	if len(buf) < MJDSize {
		return MJD{}, fmt.Errorf("short MJD buffer: %d bytes", len(buf))
	}
	r := iobit.NewReader(buf[:MJDSize])
	mjd := MJD{
		Days:  r.Int32(32),
		Secs:  r.Uint32(32),
		Musec: r.Uint32(32),
	}
	return mjd, r.Error()
}

// Time converts the MJD to UTC.
func (m MJD) Time() time.Time {
	return mjdEpoch.AddDate(0, 0, int(m.Days)).
		Add(time.Duration(m.Secs) * time.Second).
		Add(time.Duration(m.Musec) * time.Microsecond)
}

// Float returns the MJD as fractional days, handy for interpolation.
func (m MJD) Float() float64 {
	return float64(m.Days) + (float64(m.Secs)+float64(m.Musec)/1e6)/86400
}

func (m MJD) Before(o MJD) bool {
	if m.Days != o.Days {
		return m.Days < o.Days
	}
	if m.Secs != o.Secs {
		return m.Secs < o.Secs
	}
	return m.Musec < o.Musec
}

// MJDFromTime is the inverse of Time.
func MJDFromTime(t time.Time) MJD {
	d := t.UTC().Sub(mjdEpoch)
	days := int32(math.Floor(d.Hours() / 24))
	rest := d - time.Duration(days)*24*time.Hour
	return MJD{
		Days:  days,
		Secs:  uint32(rest / time.Second),
		Musec: uint32((rest % time.Second) / time.Microsecond),
	}
}

const utcLayout = "02-Jan-2006 15:04:05.000000"

// ParseUTC parses the PDS time notation, e.g. "12-MAR-2004 10:11:12.123456".
// An empty string gives the zero time.
func ParseUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(utcLayout, s)
}

// FormatUTC is the inverse of ParseUTC.
func FormatUTC(t time.Time) string {
	return strings.ToUpper(t.UTC().Format(utcLayout))
}
