package pds

import (
	"strings"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
)

// SPH is the Specific Product Header without its DSDs.
type SPH struct {
	Descriptor string
	Fields     map[string]string
	Keys       []string
}

// DSD is one Data Set Descriptor.
type DSD struct {
	Name     string
	Type     string
	Filename string
	Offset   int64
	Size     int64
	NumDSR   int
	DSRSize  int
}

// ParseSPH splits the SPH block in the header part and the numDSD
// descriptors of dsdSize bytes at its end.
func ParseSPH(block []byte, numDSD, dsdSize int) (SPH, []DSD, error) {
	if numDSD < 0 || dsdSize <= 0 || numDSD > len(block)/dsdSize {
		return SPH{}, nil, nadc.Fatalf(nadc.ErrPDSDSD, "sph", "SPH of %d bytes cannot hold %d DSDs of %d bytes",
			len(block), numDSD, dsdSize)
	}
	head := block[:len(block)-numDSD*dsdSize]
	kv := parseKeyValues(head)
	sph := SPH{
		Descriptor: kv.str("SPH_DESCRIPTOR"),
		Fields:     map[string]string{},
	}
	for _, k := range kv.keys {
		if k == "SPH_DESCRIPTOR" {
			continue
		}
		sph.Keys = append(sph.Keys, k)
		sph.Fields[k] = kv.str(k)
	}

	dsds := make([]DSD, 0, numDSD)
	for i := 0; i < numDSD; i++ {
		start := len(head) + i*dsdSize
		dsd, err := ParseDSD(block[start : start+dsdSize])
		if err != nil {
			return SPH{}, nil, err
		}
		if dsd.Name == "" {
			continue
		}
		dsds = append(dsds, dsd)
	}
	return sph, dsds, nil
}

// ParseDSD decodes one descriptor. A blank DS_NAME marks a spare entry and
// is returned as a zero DSD.
func ParseDSD(block []byte) (DSD, error) {
	kv := parseKeyValues(block)
	name := kv.str("DS_NAME")
	if name == "" {
		return DSD{}, nil
	}
	dsd := DSD{
		Name:     name,
		Type:     strings.TrimSpace(kv.str("DS_TYPE")),
		Filename: kv.str("FILENAME"),
	}
	var err error
	if dsd.Offset, err = kv.int64("DS_OFFSET"); err != nil {
		return DSD{}, nadc.Wrap(nadc.ErrPDSDSD, nadc.Fatal, name, err)
	}
	if dsd.Size, err = kv.int64("DS_SIZE"); err != nil {
		return DSD{}, nadc.Wrap(nadc.ErrPDSDSD, nadc.Fatal, name, err)
	}
	n, err := kv.int64("NUM_DSR")
	if err != nil {
		return DSD{}, nadc.Wrap(nadc.ErrPDSDSD, nadc.Fatal, name, err)
	}
	dsd.NumDSR = int(n)
	n, err = kv.int64("DSR_SIZE")
	if err != nil {
		return DSD{}, nadc.Wrap(nadc.ErrPDSDSD, nadc.Fatal, name, err)
	}
	dsd.DSRSize = int(n)
	if dsd.Offset < 0 || dsd.Size < 0 || dsd.NumDSR < 0 {
		return DSD{}, nadc.Fatalf(nadc.ErrPDSDSD, name, "negative descriptor: offset %d, size %d, %d records",
			dsd.Offset, dsd.Size, dsd.NumDSR)
	}
	return dsd, nil
}
