package pds

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/product"
)

// Product is an open PDS file.
type Product struct {
	Path string
	MPH  MPH
	SPH  SPH
	DSDs []DSD
	Size int64

	file *os.File
}

// Open reads the headers of the PDS file at path. A file size that
// disagrees with TOT_SIZE is reported through warn and does not stop Open.
func Open(path string, warn *nadc.Stack) (*Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrFile, nadc.Fatal, path, err)
	}
	p, err := read(f, path, warn)
	if err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func read(f *os.File, path string, warn *nadc.Stack) (*Product, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, nadc.Wrap(nadc.ErrFileRd, nadc.Fatal, path, err)
	}
	mphBuf := make([]byte, MPHSize)
	if _, err := io.ReadFull(f, mphBuf); err != nil {
		return nil, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, "mph", err)
	}
	mph, err := ParseMPH(mphBuf)
	if err != nil {
		return nil, err
	}
	if mph.SPHSize > info.Size()-MPHSize {
		return nil, nadc.Fatalf(nadc.ErrPDSRd, "sph", "SPH_SIZE %d exceeds file size %d", mph.SPHSize, info.Size())
	}
	sphBuf := make([]byte, mph.SPHSize)
	if _, err := io.ReadFull(f, sphBuf); err != nil {
		return nil, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, "sph", err)
	}
	sph, dsds, err := ParseSPH(sphBuf, mph.NumDSD, mph.DSDSize)
	if err != nil {
		return nil, err
	}
	if info.Size() != mph.TotSize && warn != nil {
		warn.Push(nadc.Warnf(nadc.ErrPDSSize, path, "file size %d differs from TOT_SIZE %d", info.Size(), mph.TotSize))
	}
	log.WithField("file", path).Debugf("PDS %s orbit %d, %d data sets, %s",
		mph.Product, mph.AbsOrbit, len(dsds), nadc.HumanSize(info.Size()))
	return &Product{Path: path, MPH: mph, SPH: sph, DSDs: dsds, Size: info.Size(), file: f}, nil
}

// Close releases the underlying file.
func (p *Product) Close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// DSD returns the descriptor with the given name.
func (p *Product) DSD(name string) (DSD, error) {
	for _, dsd := range p.DSDs {
		if strings.EqualFold(dsd.Name, name) {
			return dsd, nil
		}
	}
	return DSD{}, nadc.Fatalf(nadc.ErrPDSDSD, name, "no such data set in %s", p.MPH.Product)
}

// ReadDS returns the raw bytes of a data set. Empty data sets give a nil slice.
func (p *Product) ReadDS(name string) (DSD, []byte, error) {
	dsd, err := p.DSD(name)
	if err != nil {
		return dsd, nil, err
	}
	if dsd.Size == 0 || dsd.NumDSR == 0 {
		return dsd, nil, nil
	}
	if p.file == nil {
		return dsd, nil, nadc.Fatalf(nadc.ErrFileRd, name, "product is closed")
	}
	if dsd.Offset > p.Size || dsd.Size > p.Size-dsd.Offset {
		return dsd, nil, nadc.Fatalf(nadc.ErrPDSSize, name, "data set ends at %d beyond file size %d",
			dsd.Offset+dsd.Size, p.Size)
	}
	buf := make([]byte, dsd.Size)
	if _, err := p.file.ReadAt(buf, dsd.Offset); err != nil {
		return dsd, nil, nadc.Wrap(nadc.ErrPDSRd, nadc.Fatal, name, err)
	}
	return dsd, buf, nil
}

// Header returns the generic header of the product.
func (p *Product) Header() product.Header {
	return product.Header{
		Name:        p.MPH.Product,
		Family:      Family(p.MPH.Product),
		Orbit:       p.MPH.AbsOrbit,
		Start:       p.MPH.SensingStart,
		Stop:        p.MPH.SensingStop,
		ProcTime:    p.MPH.ProcTime,
		SoftVersion: p.MPH.SoftwareVer,
	}
}

// Family derives the product family from the product name, e.g.
// "SCI_NL__1P..." gives "SCI_NL__1P".
func Family(name string) string {
	if len(name) < 10 {
		return name
	}
	return name[:10]
}

func (d DSD) String() string {
	return fmt.Sprintf("%-28s %s %10d %10d %6d %6d", d.Name, d.Type, d.Offset, d.Size, d.NumDSR, d.DSRSize)
}
