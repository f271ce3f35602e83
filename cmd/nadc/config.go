package main

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/runner"
	"github.com/sron-nadc/nadc_tools/pkg/store"
)

const defaultCalib = "MNDPESTBCI"

// newConfig returns a viper instance with the defaults and the NADC_*
// environment bound. Values from nadc.toml are read when the file exists.
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("calib", defaultCalib)
	v.SetDefault("procs", runner.DefaultProcs)
	v.SetDefault("batch", 500)
	v.SetDefault("strict", false)
	v.SetDefault("replace", false)

	v.SetEnvPrefix("NADC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("nadc")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc/nadc")
	v.AddConfigPath(".")
	return v
}

// readConfigFile loads nadc.toml. A missing file is not an error.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		log.Debug("no nadc.toml found")
		return nil
	}
	if err == nil {
		log.Debugf("configuration read from %s", v.ConfigFileUsed())
	}
	return err
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String("calib", defaultCalib, "calibration steps, e.g. MNDPESTBCI, 0, all or none")
	fs.String("sdmf", "", "path to the SDMF calibration store (HDF5)")
	fs.Bool("sdmf-ppg", false, "take the PPG factors from the SDMF store instead of the product")
	fs.String("out", "", "output store: postgres:// URL, *.h5, *.nc, directory, *.tdb or s3:// array")
	fs.String("dsn", "", "PostgreSQL connection string, used when --out is empty")
	fs.Int("procs", runner.DefaultProcs, "number of files processed concurrently")
	fs.Bool("strict", false, "treat a missing calibration table as fatal")
	fs.Bool("replace", false, "replace products that are already stored")
	fs.Int("batch", 500, "rows per database round trip")
	fs.String("family", "", "derived product family, overrides the product attribute")
	fs.StringSlice("ds", nil, "MDS data sets to read (default: all)")
	fs.String("pushgateway", "", "Prometheus push gateway URL")
	fs.String("region", "", "S3 region of remote TileDB arrays")
}

// runOptions converts the resolved configuration into runner options.
func runOptions(v *viper.Viper) (runner.Options, error) {
	flags, err := calib.ParseFlags(v.GetString("calib"))
	if err != nil {
		return runner.Options{}, nadc.Wrap(nadc.ErrParam, nadc.Fatal, "calib", err)
	}
	out := v.GetString("out")
	if out == "" {
		out = v.GetString("dsn")
	}
	procs := v.GetInt("procs")
	if procs <= 0 {
		return runner.Options{}, nadc.Fatalf(nadc.ErrParam, "procs", "invalid number of processes %d", procs)
	}
	return runner.Options{
		Flags:   flags,
		Strict:  v.GetBool("strict"),
		Procs:   procs,
		SDMF:    v.GetString("sdmf"),
		SDMFPPG: v.GetBool("sdmf-ppg"),
		Out:     out,
		Store: store.Options{
			Replace:   v.GetBool("replace"),
			BatchSize: v.GetInt("batch"),
			Region:    v.GetString("region"),
		},
		Family:      v.GetString("family"),
		DSNames:     v.GetStringSlice("ds"),
		Pushgateway: v.GetString("pushgateway"),
	}, nil
}
