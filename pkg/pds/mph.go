package pds

import (
	"time"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// MPHSize is the fixed size of the Main Product Header.
const MPHSize = 1247

// MPH is the Main Product Header.
type MPH struct {
	Product         string
	ProcStage       string
	RefDoc          string
	AcqStation      string
	ProcCenter      string
	ProcTime        time.Time
	SoftwareVer     string
	SensingStart    time.Time
	SensingStop     time.Time
	Phase           string
	Cycle           int
	RelOrbit        int
	AbsOrbit        int
	StateVectorTime time.Time
	TotSize         int64
	SPHSize         int64
	NumDSD          int
	DSDSize         int
	NumDataSets     int
}

var mandatoryMPH = []string{"PRODUCT", "TOT_SIZE", "SPH_SIZE", "NUM_DSD", "DSD_SIZE"}

// ParseMPH decodes the ASCII Main Product Header.
func ParseMPH(block []byte) (MPH, error) {
	kv := parseKeyValues(block)
	for _, key := range mandatoryMPH {
		if !kv.has(key) {
			return MPH{}, nadc.Fatalf(nadc.ErrPDSRd, "mph", "missing key %s", key)
		}
	}

	mph := MPH{
		Product:     kv.str("PRODUCT"),
		ProcStage:   kv.str("PROC_STAGE"),
		RefDoc:      kv.str("REF_DOC"),
		AcqStation:  kv.str("ACQUISITION_STATION"),
		ProcCenter:  kv.str("PROC_CENTER"),
		SoftwareVer: kv.str("SOFTWARE_VER"),
		Phase:       kv.str("PHASE"),
	}

	var err error
	for key, dst := range map[string]*time.Time{
		"PROC_TIME":         &mph.ProcTime,
		"SENSING_START":     &mph.SensingStart,
		"SENSING_STOP":      &mph.SensingStop,
		"STATE_VECTOR_TIME": &mph.StateVectorTime,
	} {
		if *dst, err = ParseUTC(kv.str(key)); err != nil {
			return MPH{}, nadc.Fatalf(nadc.ErrPDSRd, key, "invalid time: %v", err)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CYCLE", &mph.Cycle},
		{"REL_ORBIT", &mph.RelOrbit},
		{"ABS_ORBIT", &mph.AbsOrbit},
		{"NUM_DSD", &mph.NumDSD},
		{"DSD_SIZE", &mph.DSDSize},
		{"NUM_DATA_SETS", &mph.NumDataSets},
	}
	for _, f := range ints {
		n, err := kv.optInt64(f.key)
		if err != nil {
			return MPH{}, err
		}
		*f.dst = int(n)
	}
	if mph.TotSize, err = kv.int64("TOT_SIZE"); err != nil {
		return MPH{}, err
	}
	if mph.SPHSize, err = kv.int64("SPH_SIZE"); err != nil {
		return MPH{}, err
	}
	if mph.TotSize < 0 || mph.SPHSize < 0 {
		return MPH{}, nadc.Fatalf(nadc.ErrPDSRd, "mph", "negative size: TOT_SIZE %d, SPH_SIZE %d", mph.TotSize, mph.SPHSize)
	}
	if mph.NumDSD < 0 || mph.DSDSize <= 0 {
		return MPH{}, nadc.Fatalf(nadc.ErrPDSRd, "mph", "invalid DSD geometry %d x %d", mph.NumDSD, mph.DSDSize)
	}
	return mph, nil
}
