package nadc

import "sync"

// HDF5 serializes calls into the HDF5 and netCDF C libraries. Neither is
// built thread safe and netCDF-4 files go through HDF5 as well, so every
// open, read, write and close of such a file happens with HDF5 held.
var HDF5 sync.Mutex
