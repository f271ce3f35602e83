package pds_test

import (
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/pds/pdstest"
)

var (
	start = time.Date(2004, time.March, 12, 10, 11, 12, 123456000, time.UTC)
	stop  = start.Add(100 * time.Minute)
)

func testProduct(t *testing.T) string {
	return pdstest.WriteFile(t, pdstest.Options{
		Product: "SCI_NLC_1PNPDK20040312_101112_000060002025_00123_10725_0000.N1",
		Orbit:   10725,
		Start:   start,
		Stop:    stop,
		Spare:   1,
	}, []pdstest.DataSet{
		{Name: "STATES", Type: "C", NumDSR: 2, DSRSize: 4, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Name: "NADIR", NumDSR: 1, DSRSize: -1, Data: []byte{9, 9, 9}},
		{Name: "LIMB", NumDSR: 0, DSRSize: -1},
	})
}

func TestOpen(t *testing.T) {
	var warn nadc.Stack
	p, err := pds.Open(testProduct(t), &warn)
	require.NoError(t, err)
	defer p.Close()

	assert := assert.New(t)
	assert.Equal("SCI_NLC_1PNPDK20040312_101112_000060002025_00123_10725_0000.N1", p.MPH.Product)
	assert.Equal(10725, p.MPH.AbsOrbit)
	assert.Equal(25, p.MPH.Cycle)
	assert.Equal("SCIA/7.04", p.MPH.SoftwareVer)
	assert.True(start.Equal(p.MPH.SensingStart))
	assert.True(stop.Equal(p.MPH.SensingStop))
	assert.Equal("SCIAMACHY TEST PRODUCT", p.SPH.Descriptor)
	assert.Equal("5.01", p.SPH.Fields["KEY_DATA_VERSION"])
	assert.Len(p.DSDs, 3, "spare DSD must be dropped")
	assert.Equal(0, warn.Len())

	dsd, data, err := p.ReadDS("states")
	require.NoError(t, err)
	assert.Equal(2, dsd.NumDSR)
	assert.Equal("C", dsd.Type)
	assert.Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}, data)

	_, data, err = p.ReadDS("NADIR")
	require.NoError(t, err)
	assert.Equal([]byte{9, 9, 9}, data)

	_, data, err = p.ReadDS("LIMB")
	require.NoError(t, err)
	assert.Nil(data)

	_, _, err = p.ReadDS("OCCULTATION")
	assert.Equal(nadc.ErrPDSDSD, nadc.CodeOf(err))

	h := p.Header()
	assert.Equal("SCI_NLC_1P", h.Family)
	assert.Equal(10725, h.Orbit)
}

func TestOpenSizeMismatch(t *testing.T) {
	path := testProduct(t)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("trailing"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var warn nadc.Stack
	p, err := pds.Open(path, &warn)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, 1, warn.Len())
	assert.Equal(t, nadc.ErrPDSSize, warn.Entries()[0].Code)
}

func TestParseMPHMissingKey(t *testing.T) {
	_, err := pds.ParseMPH([]byte("PRODUCT=\"X\"\nTOT_SIZE=+1<bytes>\n"))
	require.Error(t, err)
	assert.True(t, nadc.IsFatal(err))
	assert.Contains(t, err.Error(), "SPH_SIZE")
}

func TestParseDSDInvalidOffset(t *testing.T) {
	_, err := pds.ParseDSD([]byte("DS_NAME=\"NADIR\"\nDS_TYPE=M\nDS_OFFSET=+abc<bytes>\n"))
	assert.Equal(t, nadc.ErrPDSDSD, nadc.CodeOf(err))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := pds.Open("/nonexistent/product.N1", nil)
	assert.Equal(t, nadc.ErrFile, nadc.CodeOf(err))
}

func TestMJD(t *testing.T) {
	buf := []byte{0, 0, 0x10, 0x00, 0, 0, 0x0e, 0x10, 0, 0x07, 0xa1, 0x20}
	mjd, err := pds.DecodeMJD(buf)
	require.NoError(t, err)
	assert.Equal(t, pds.MJD{Days: 4096, Secs: 3600, Musec: 500000}, mjd)

	want := time.Date(2000, 1, 1, 1, 0, 0, 500000000, time.UTC).AddDate(0, 0, 4096)
	assert.True(t, want.Equal(mjd.Time()))
	assert.Equal(t, mjd, pds.MJDFromTime(mjd.Time()))
	assert.True(t, pds.MJD{Days: 1}.Before(pds.MJD{Days: 1, Musec: 1}))

	_, err = pds.DecodeMJD(buf[:5])
	assert.Error(t, err)
}

func TestParseUTC(t *testing.T) {
	ts, err := pds.ParseUTC("12-MAR-2004 10:11:12.123456")
	require.NoError(t, err)
	assert.True(t, start.Equal(ts))
	assert.Equal(t, "12-MAR-2004 10:11:12.123456", pds.FormatUTC(ts))

	ts, err = pds.ParseUTC("   ")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestParseDSDNegativeValues(t *testing.T) {
	tests := []struct {
		name  string
		block string
	}{
		{"offset", "DS_NAME=\"NADIR\"\nDS_OFFSET=-0000000001<bytes>\nDS_SIZE=+10<bytes>\nNUM_DSR=+1\nDSR_SIZE=-1<bytes>\n"},
		{"size", "DS_NAME=\"NADIR\"\nDS_OFFSET=+2000<bytes>\nDS_SIZE=-10<bytes>\nNUM_DSR=+1\nDSR_SIZE=-1<bytes>\n"},
		{"num_dsr", "DS_NAME=\"NADIR\"\nDS_OFFSET=+2000<bytes>\nDS_SIZE=+10<bytes>\nNUM_DSR=-3\nDSR_SIZE=-1<bytes>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pds.ParseDSD([]byte(tt.block))
			require.Error(t, err)
			assert.Equal(t, nadc.ErrPDSDSD, nadc.CodeOf(err))
			assert.True(t, nadc.IsFatal(err))
		})
	}

	dsd, err := pds.ParseDSD([]byte("DS_NAME=\"NADIR\"\nDS_OFFSET=+2000<bytes>\nDS_SIZE=+10<bytes>\nNUM_DSR=+1\nDSR_SIZE=-1<bytes>\n"))
	require.NoError(t, err)
	assert.Equal(t, -1, dsd.DSRSize, "variable record size is allowed")
}

func TestParseMPHNegativeSize(t *testing.T) {
	_, err := pds.ParseMPH([]byte("PRODUCT=\"X\"\nTOT_SIZE=+100<bytes>\nSPH_SIZE=-5<bytes>\nNUM_DSD=+1\nDSD_SIZE=+280<bytes>\n"))
	require.Error(t, err)
	assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err))

	_, err = pds.ParseMPH([]byte("PRODUCT=\"X\"\nTOT_SIZE=+100<bytes>\nSPH_SIZE=+5<bytes>\nNUM_DSD=-1\nDSD_SIZE=+280<bytes>\n"))
	assert.Error(t, err)
}

var sphSizeField = regexp.MustCompile(`SPH_SIZE=[+-][0-9]{10}`)

// rewriteSPHSize replaces the SPH_SIZE value of the product at path
// without moving any other byte.
func rewriteSPHSize(t *testing.T, path, value string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, sphSizeField.Match(data))
	data = sphSizeField.ReplaceAll(data, []byte("SPH_SIZE="+value))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestOpenInvalidSPHSize(t *testing.T) {
	for _, value := range []string{"+0999999999", "-0000000001"} {
		path := testProduct(t)
		rewriteSPHSize(t, path, value)
		_, err := pds.Open(path, nil)
		require.Error(t, err, value)
		assert.Equal(t, nadc.ErrPDSRd, nadc.CodeOf(err), value)
	}
}

func TestOpenNegativeNumDSR(t *testing.T) {
	path := pdstest.WriteFile(t, pdstest.Options{Product: "SCI_NLC_1P_BROKEN.N1", Start: start, Stop: stop},
		[]pdstest.DataSet{{Name: "STATES", Type: "A", NumDSR: -1, DSRSize: 1386, Data: []byte{1, 2}}})
	_, err := pds.Open(path, nil)
	require.Error(t, err)
	assert.Equal(t, nadc.ErrPDSDSD, nadc.CodeOf(err))
}
