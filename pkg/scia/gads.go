package scia

import (
	"math"

	"github.com/bamiaux/iobit"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// PPGEtalonName is the name of the GADS holding the pixel-to-pixel gain
// and etalon factors.
const PPGEtalonName = "PPG_ETALON"

// PPGEtalonSize is the size of the single PPG_ETALON DSR.
const PPGEtalonSize = calib.NumPixels * (4*4 + 1)

// PPGEtalon holds the pixel-to-pixel gain and etalon factors and the bad
// and dead pixel mask of a product.
type PPGEtalon struct {
	PPG         []float32
	Etalon      []float32
	EtalonResid []float32
	WLSDeg      []float32
	BDPM        []uint8
}

// DecodePPGEtalon decodes the PPG_ETALON DSR.
func DecodePPGEtalon(buf []byte) (*PPGEtalon, error) {
	if len(buf) != PPGEtalonSize {
		return nil, nadc.Fatalf(nadc.ErrPDSSize, PPGEtalonName, "%d bytes, want %d", len(buf), PPGEtalonSize)
	}
	g := &PPGEtalon{
		PPG:         make([]float32, calib.NumPixels),
		Etalon:      make([]float32, calib.NumPixels),
		EtalonResid: make([]float32, calib.NumPixels),
		WLSDeg:      make([]float32, calib.NumPixels),
		BDPM:        make([]uint8, calib.NumPixels),
	}
	r := iobit.NewReader(buf)
	for _, dst := range [][]float32{g.PPG, g.Etalon, g.EtalonResid, g.WLSDeg} {
		for i := range dst {
			dst[i] = math.Float32frombits(r.Uint32(32))
		}
	}
	for i := range g.BDPM {
		g.BDPM[i] = r.Uint8(8)
	}
	if err := r.Error(); err != nil {
		return nil, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, PPGEtalonName, err)
	}
	return g, nil
}

// EncodePPGEtalon is the inverse of DecodePPGEtalon.
func EncodePPGEtalon(g *PPGEtalon) ([]byte, error) {
	for _, s := range [][]float32{g.PPG, g.Etalon, g.EtalonResid, g.WLSDeg} {
		if len(s) != calib.NumPixels {
			return nil, nadc.Fatalf(nadc.ErrParam, PPGEtalonName, "%d factors, want %d", len(s), calib.NumPixels)
		}
	}
	if len(g.BDPM) != calib.NumPixels {
		return nil, nadc.Fatalf(nadc.ErrParam, PPGEtalonName, "%d mask entries, want %d", len(g.BDPM), calib.NumPixels)
	}
	buf := make([]byte, PPGEtalonSize)
	w := iobit.NewWriter(buf)
	for _, src := range [][]float32{g.PPG, g.Etalon, g.EtalonResid, g.WLSDeg} {
		for _, v := range src {
			w.PutUint32(32, math.Float32bits(v))
		}
	}
	for _, b := range g.BDPM {
		w.PutUint8(8, b)
	}
	if err := w.Flush(); err != nil {
		return nil, nadc.Wrap(nadc.ErrFileWr, nadc.Fatal, PPGEtalonName, err)
	}
	return buf, nil
}

func widen(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// Fill sets the PPG, etalon and bad pixel tables of t that are not loaded
// yet from the product's own factors.
func (g *PPGEtalon) Fill(t *calib.Tables) {
	if t.PPG == nil {
		t.PPG = widen(g.PPG)
	}
	if t.Etalon == nil {
		t.Etalon = widen(g.Etalon)
	}
	if t.BadPixel == nil {
		t.BadPixel = make([]bool, len(g.BDPM))
		for i, b := range g.BDPM {
			t.BadPixel[i] = b != 0
		}
	}
}
