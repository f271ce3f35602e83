// Command pdsinfo prints the headers and the data set descriptors of
// Envisat PDS products.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/pds"
	"github.com/sron-nadc/nadc_tools/pkg/scia"
)

// printProduct writes the MPH, the SPH descriptor and the DSD table of p.
func printProduct(w io.Writer, p *pds.Product) {
	m := p.MPH
	fmt.Fprintf(w, "%s (%s)\n", m.Product, nadc.HumanSize(p.Size))
	fmt.Fprintf(w, "  proc stage   %s, %s at %s\n", m.ProcStage, m.ProcCenter, pds.FormatUTC(m.ProcTime))
	fmt.Fprintf(w, "  software     %s\n", m.SoftwareVer)
	fmt.Fprintf(w, "  sensing      %s - %s\n", pds.FormatUTC(m.SensingStart), pds.FormatUTC(m.SensingStop))
	fmt.Fprintf(w, "  orbit        %d (phase %s, cycle %d, rel %d)\n", m.AbsOrbit, m.Phase, m.Cycle, m.RelOrbit)
	fmt.Fprintf(w, "  SPH          %s\n", p.SPH.Descriptor)
	fmt.Fprintf(w, "  %-28s %s %10s %10s %6s %6s\n", "DS_NAME", "T", "OFFSET", "SIZE", "NUM", "DSR")
	for _, d := range p.DSDs {
		fmt.Fprintf(w, "  %s\n", d.String())
	}
}

// printStates adds the state summary of a SCIAMACHY Level-1c product.
func printStates(w io.Writer, p *pds.Product) error {
	dsd, buf, err := p.ReadDS("STATES")
	if err != nil {
		return err
	}
	states, err := scia.DecodeStates(buf, dsd.NumDSR)
	if err != nil {
		return err
	}
	first := pds.MJDFromTime(p.MPH.SensingStart)
	last := pds.MJDFromTime(p.MPH.SensingStop)
	count := map[uint16]int{}
	outside := 0
	for _, st := range states {
		count[st.StateID]++
		if st.MJD.Before(first) || last.Before(st.MJD) {
			outside++
		}
	}
	fmt.Fprintf(w, "  %d states, %d state IDs\n", len(states), len(count))
	if len(states) > 0 {
		fmt.Fprintf(w, "  first state  %s\n", pds.FormatUTC(states[0].MJD.Time()))
	}
	if outside > 0 {
		fmt.Fprintf(w, "  %d states outside the sensing window\n", outside)
	}
	if len(states) > 1 {
		avg, min := scia.StateTiming(states)
		fmt.Fprintf(w, "  state spacing avg %.3fs min %.3fs\n", avg, min)
	}
	return nil
}

func main() {
	statesPtr := flag.Bool("states", false, "also summarise the STATES data set")
	verbosePtr := flag.Bool("v", false, "debug logging")
	flag.Parse()
	nadc.SetupLogging(*verbosePtr)

	filenames := flag.Args()
	if len(filenames) == 0 {
		flag.PrintDefaults()
		log.Fatalln("no files specified")
	}
	failed := 0
	for _, filename := range filenames {
		var warn nadc.Stack
		p, err := pds.Open(filename, &warn)
		warn.Flush(log.WithField("file", filename))
		if err != nil {
			log.Errorf("error reading %s: %v", filename, err)
			failed++
			continue
		}
		printProduct(os.Stdout, p)
		if *statesPtr {
			if err := printStates(os.Stdout, p); err != nil {
				log.Errorf("error reading states of %s: %v", filename, err)
				failed++
			}
		}
		p.Close()
	}
	if failed > 0 {
		os.Exit(1)
	}
}
