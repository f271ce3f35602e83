package calib

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// A step applies one correction to every cluster. It returns ErrNoTable
// (wrapped) when its table is missing.
type step func(recs []Record, tabs *Tables, warn *nadc.Stack) error

var steps = map[Flags]step{
	Memory:       memoryStep,
	NonLinearity: nonLinStep,
	Dark:         darkStep,
	PPG:          ppgStep,
	Etalon:       etalonStep,
	Straylight:   strayStep,
	Transmission: transStep,
	BadPixel:     badPixelStep,
	Coadd:        coaddStep,
	Exposure:     exposureStep,
}

func noTable(name string) error {
	return nadc.Wrap(nadc.ErrCalib, nadc.Warning, name, ErrNoTable)
}

// eachCluster calls fn for every non-empty cluster.
func eachCluster(recs []Record, fn func(c *Cluster)) {
	for i := range recs {
		for j := range recs[i].Clusters {
			if c := &recs[i].Clusters[j]; !c.Empty() {
				fn(c)
			}
		}
	}
}

func coaddOf(c *Cluster) float64 {
	if c.Coaddf < 1 {
		return 1
	}
	return float64(c.Coaddf)
}

// memoryStep removes the memory effect of the Reticon channels 1-5. The
// correction depends on the signal of the previous read-out, for the first
// observation the signal itself.
func memoryStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	if tabs.Memory == nil {
		return noTable("memory")
	}
	eachCluster(recs, func(c *Cluster) {
		if c.Channel < 1 || c.Channel > 5 {
			return
		}
		curve := int(c.Channel) - 1
		coadd := coaddOf(c)
		np := c.NumPixels()
		prev := make([]float64, np)
		copy(prev, c.Values[:np])
		for j := 0; j < c.NumObs; j++ {
			obs := c.Values[j*np : (j+1)*np]
			for i, v := range obs {
				obs[i] = v - coadd*tabs.Memory.At(curve, prev[i]/coadd)
				prev[i] = v
			}
		}
	})
	return nil
}

// nonLinStep removes the non-linearity of the Epitaxx channels 6-8.
func nonLinStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	if tabs.NonLin == nil {
		return noTable("non-linearity")
	}
	eachCluster(recs, func(c *Cluster) {
		if c.Channel < 6 || c.Channel > 8 {
			return
		}
		coadd := coaddOf(c)
		np := c.NumPixels()
		for i, id := range c.PixelIDs {
			k := int(id) - 5*ChannelSize
			if k < 0 || k >= len(tabs.NonLin.CurveIndex) {
				continue
			}
			curve := int(tabs.NonLin.CurveIndex[k])
			for j := 0; j < c.NumObs; j++ {
				v := c.Values[j*np+i]
				c.Values[j*np+i] = v - coadd*tabs.NonLin.At(curve, v/coadd)
			}
		}
	})
	return nil
}

func darkStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	d := tabs.Dark
	if d == nil {
		return noTable("dark")
	}
	eachCluster(recs, func(c *Cluster) {
		coadd := coaddOf(c)
		np := c.NumPixels()
		for i, id := range c.PixelIDs {
			dark := coadd * (d.AnalogOffset[id] + c.PET*d.DarkCurrent[id])
			var noise2 float64
			if d.Noise != nil {
				noise2 = coadd * d.Noise[id] * d.Noise[id]
			}
			for j := 0; j < c.NumObs; j++ {
				c.Values[j*np+i] -= dark
				if c.Errors != nil {
					e := c.Errors[j*np+i]
					c.Errors[j*np+i] = math.Sqrt(e*e + noise2)
				}
			}
		}
	})
	return nil
}

// divideBy divides values and errors by the per-pixel factor. Factors that
// are not positive leave the pixel unchanged.
func divideBy(recs []Record, factor []float64) {
	eachCluster(recs, func(c *Cluster) {
		np := c.NumPixels()
		for i, id := range c.PixelIDs {
			f := factor[id]
			if !(f > 0) {
				continue
			}
			for j := 0; j < c.NumObs; j++ {
				c.Values[j*np+i] /= f
				if c.Errors != nil {
					c.Errors[j*np+i] /= f
				}
			}
		}
	})
}

func ppgStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	if tabs.PPG == nil {
		return noTable("ppg")
	}
	divideBy(recs, tabs.PPG)
	return nil
}

func etalonStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	if tabs.Etalon == nil {
		return noTable("etalon")
	}
	divideBy(recs, tabs.Etalon)
	return nil
}

// strayStep subtracts the straylight predicted from the cluster spectrum.
// The orbit dependent scale factor is computed once for all clusters.
func strayStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	st := tabs.Stray
	if st == nil {
		return noTable("straylight")
	}
	scale := st.ScaleAt(float64(tabs.Orbit))
	eachCluster(recs, func(c *Cluster) {
		if c.Channel < 1 || c.Channel > NumChannels {
			return
		}
		m := st.Matrix[c.Channel-1]
		if m == nil {
			return
		}
		_, bins := m.Dims()
		width := ChannelSize / bins
		coadd := coaddOf(c)
		np := c.NumPixels()

		src := mat.NewVecDense(bins, nil)
		stray := mat.NewVecDense(ChannelSize, nil)
		sum := make([]float64, bins)
		count := make([]float64, bins)
		for j := 0; j < c.NumObs; j++ {
			obs := c.Values[j*np : (j+1)*np]
			floats.Scale(0, sum)
			floats.Scale(0, count)
			for i, id := range c.PixelIDs {
				if math.IsNaN(obs[i]) {
					continue
				}
				b := (int(id) % ChannelSize) / width
				sum[b] += obs[i] / coadd
				count[b]++
			}
			for b := range sum {
				if count[b] > 0 {
					src.SetVec(b, sum[b]/count[b])
				} else {
					src.SetVec(b, 0)
				}
			}
			stray.MulVec(m, src)
			for i, id := range c.PixelIDs {
				obs[i] -= scale * coadd * stray.AtVec(int(id)%ChannelSize)
			}
		}
	})
	return nil
}

// transStep corrects for the instrument throughput. The transmission is
// interpolated to the product orbit; pixels without a valid transmission
// use the median of their channel.
func transStep(recs []Record, tabs *Tables, warn *nadc.Stack) error {
	tr := tabs.Trans
	if tr == nil {
		return noTable("transmission")
	}
	lo, hi, w := tr.Bracket(float64(tabs.Orbit))
	trans := make([]float64, NumPixels)
	floats.AddScaledTo(trans, tr.Values[lo], w, tr.Values[hi])
	floats.AddScaled(trans, -w, tr.Values[lo])

	for ch := 0; ch < NumChannels; ch++ {
		row := trans[ch*ChannelSize : (ch+1)*ChannelSize]
		valid := make([]float64, 0, ChannelSize)
		for _, v := range row {
			if v > 0 {
				valid = append(valid, v)
			}
		}
		if len(valid) == len(row) {
			continue
		}
		med, ok := Median(valid)
		if !ok {
			warn.Push(nadc.Warnf(nadc.ErrCalib, "transmission", "channel %d has no valid transmission", ch+1))
			continue
		}
		for i, v := range row {
			if !(v > 0) {
				row[i] = med
			}
		}
	}
	divideBy(recs, trans)
	return nil
}

func badPixelStep(recs []Record, tabs *Tables, _ *nadc.Stack) error {
	if tabs.BadPixel == nil {
		return noTable("bad-pixel")
	}
	nan := math.NaN()
	eachCluster(recs, func(c *Cluster) {
		np := c.NumPixels()
		for i, id := range c.PixelIDs {
			if !tabs.BadPixel[id] {
				continue
			}
			for j := 0; j < c.NumObs; j++ {
				c.Values[j*np+i] = nan
				if c.Errors != nil {
					c.Errors[j*np+i] = nan
				}
			}
		}
	})
	return nil
}

func scaleCluster(c *Cluster, f float64) {
	floats.Scale(f, c.Values)
	if c.Errors != nil {
		floats.Scale(f, c.Errors)
	}
}

func coaddStep(recs []Record, _ *Tables, warn *nadc.Stack) error {
	eachCluster(recs, func(c *Cluster) {
		if c.Coaddf < 1 {
			warn.Push(nadc.Warnf(nadc.ErrCalib, "coadd", "cluster %d has coadd factor %d", c.ClusID, c.Coaddf))
			return
		}
		scaleCluster(c, 1/float64(c.Coaddf))
	})
	return nil
}

func exposureStep(recs []Record, _ *Tables, warn *nadc.Stack) error {
	eachCluster(recs, func(c *Cluster) {
		if !(c.PET > 0) {
			warn.Push(nadc.Warnf(nadc.ErrCalib, "exposure", "cluster %d has exposure time %g", c.ClusID, c.PET))
			return
		}
		scaleCluster(c, 1/c.PET)
	})
	return nil
}
