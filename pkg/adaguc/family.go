// Package adaguc reads the ADAGUC netCDF files of the SCIAMACHY derived
// products into ground-pixel tiles.
package adaguc

import (
	"sort"
	"strings"
)

// Family lists the data columns of one derived product. The first column
// is required, the others are filled with NaN when absent.
type Family struct {
	Name    string
	Columns []string
}

var families = map[string]Family{
	"TOGOMI": {"TOGOMI", []string{"ozone_column", "ozone_column_error", "cloud_fraction", "solar_zenith_angle"}},
	"TOSOMI": {"TOSOMI", []string{"ozone_column", "ozone_column_error", "ghost_column"}},
	"FRESCO": {"FRESCO", []string{"cloud_fraction", "cloud_pressure", "surface_albedo"}},
	"IMAP":   {"IMAP", []string{"ch4_column", "ch4_column_error", "co2_column"}},
	"IMLM":   {"IMLM", []string{"co_column", "co_column_error", "ch4_column"}},
}

// Lookup finds a family by name. Product attributes such as
// "SCIA_TOGOMI_v1" also match.
func Lookup(name string) (Family, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if f, ok := families[name]; ok {
		return f, true
	}
	for _, key := range Names() {
		if strings.Contains(name, key) {
			return families[key], true
		}
	}
	return Family{}, false
}

// Names returns the known family names, sorted.
func Names() []string {
	names := make([]string, 0, len(families))
	for k := range families {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
