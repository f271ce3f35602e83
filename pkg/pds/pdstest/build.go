// Package pdstest builds small synthetic PDS products for tests.
package pdstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sron-nadc/nadc_tools/pkg/pds"
)

const (
	mphSize = 1247
	dsdSize = 280
)

// DataSet describes one data set of a synthetic product.
type DataSet struct {
	Name    string
	Type    string
	NumDSR  int
	DSRSize int
	Data    []byte
}

// Options controls the product header.
type Options struct {
	Product string
	Orbit   int
	Start   time.Time
	Stop    time.Time
	// Spare adds this many blank DSD entries after the data sets.
	Spare int
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// Build returns the bytes of a product holding sets in order.
func Build(opts Options, sets []DataSet) []byte {
	sphHead := "SPH_DESCRIPTOR=\"SCIAMACHY TEST PRODUCT\"\n" +
		"STRIPLINE_CONTINUITY_INDICATOR=+000\n" +
		"KEY_DATA_VERSION=\"5.01 \"\n"
	numDSD := len(sets) + opts.Spare
	sphSize := len(sphHead) + numDSD*dsdSize

	offset := int64(mphSize + sphSize)
	var dsds strings.Builder
	for _, ds := range sets {
		typ := ds.Type
		if typ == "" {
			typ = "M"
		}
		block := fmt.Sprintf("DS_NAME=\"%s\"\nDS_TYPE=%s\nFILENAME=\"%s\"\n"+
			"DS_OFFSET=%+021d<bytes>\nDS_SIZE=%+021d<bytes>\nNUM_DSR=%+011d\nDSR_SIZE=%+011d<bytes>\n",
			pad(ds.Name, 28), typ, pad("", 62), offset, len(ds.Data), ds.NumDSR, ds.DSRSize)
		dsds.WriteString(pad(block, dsdSize-1) + "\n")
		offset += int64(len(ds.Data))
	}
	for i := 0; i < opts.Spare; i++ {
		dsds.WriteString(pad("DS_NAME=\""+pad("", 28)+"\"\n", dsdSize-1) + "\n")
	}
	totSize := offset

	mph := fmt.Sprintf("PRODUCT=\"%s\"\nPROC_STAGE=N\nREF_DOC=\"PO-RS-MDA-GS-2009_15_3I\"\n"+
		"ACQUISITION_STATION=\"PDHS-K              \"\nPROC_CENTER=\"PDHS-K\"\n"+
		"PROC_TIME=\"%s\"\nSOFTWARE_VER=\"SCIA/7.04    \"\n"+
		"SENSING_START=\"%s\"\nSENSING_STOP=\"%s\"\n"+
		"PHASE=2\nCYCLE=+025\nREL_ORBIT=+00123\nABS_ORBIT=%+06d\n"+
		"STATE_VECTOR_TIME=\"%s\"\n"+
		"TOT_SIZE=%+021d<bytes>\nSPH_SIZE=%+011d<bytes>\nNUM_DSD=%+011d\nDSD_SIZE=%+011d<bytes>\nNUM_DATA_SETS=%+011d\n",
		pad(opts.Product, 62), pds.FormatUTC(opts.Stop), pds.FormatUTC(opts.Start), pds.FormatUTC(opts.Stop), opts.Orbit, pds.FormatUTC(opts.Start),
		totSize, sphSize, numDSD, dsdSize, len(sets))

	out := make([]byte, 0, totSize)
	out = append(out, pad(mph, mphSize)...)
	out = append(out, sphHead...)
	out = append(out, dsds.String()...)
	for _, ds := range sets {
		out = append(out, ds.Data...)
	}
	return out
}

// WriteFile builds a product and writes it to a file in a test temp dir.
func WriteFile(t testing.TB, opts Options, sets []DataSet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), strings.TrimSpace(opts.Product))
	if err := os.WriteFile(path, Build(opts, sets), 0o644); err != nil {
		t.Fatalf("writing test product: %v", err)
	}
	return path
}
