// Command scia_patch replaces the PPG factors and bad pixel mask in the
// PPG_ETALON GADS of SCIAMACHY Level-1c products with those of an SDMF
// calibration store.
package main

import (
	"context"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/runner"
)

func main() {
	nadc.LoadEnv()
	sdmfPtr := flag.String("sdmf", os.Getenv("NADC_SDMF"), "Path to the SDMF calibration store")
	numProcsPtr := flag.Int("procs", runner.DefaultProcs, "Number of concurrent processes")
	verbosePtr := flag.Bool("v", false, "debug logging")
	flag.Parse()
	nadc.SetupLogging(*verbosePtr)

	filenames := flag.Args()
	if len(filenames) == 0 {
		flag.PrintDefaults()
		log.Fatalln("no files specified")
	}
	if *sdmfPtr == "" {
		log.Fatalln("no SDMF store specified")
	}

	ctx := context.Background()
	r, err := runner.New(ctx, runner.Options{SDMF: *sdmfPtr, Procs: *numProcsPtr})
	if err != nil {
		log.Fatalf("error opening %s: %v", *sdmfPtr, err)
	}
	summary := r.PatchFiles(ctx, filenames)
	r.Close()
	if summary.Failed > 0 {
		log.Errorf("%d files failed: %v", summary.Failed, summary.Err)
		os.Exit(1)
	}
}
