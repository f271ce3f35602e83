// Command nadc calibrates SCIAMACHY Level-1c products, ingests derived
// products and maintains the output stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sron-nadc/nadc_tools/pkg/adaguc"
	"github.com/sron-nadc/nadc_tools/pkg/calib"
	"github.com/sron-nadc/nadc_tools/pkg/nadc"
	"github.com/sron-nadc/nadc_tools/pkg/runner"
	"github.com/sron-nadc/nadc_tools/pkg/sdmf"
	"github.com/sron-nadc/nadc_tools/pkg/store"
)

func main() {
	nadc.LoadEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newConfig()).ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "nadc",
		Short:         "SCIAMACHY Level-1c calibration and product ingestion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if f := v.GetString("config"); f != "" {
				v.SetConfigFile(f)
			}
			if err := readConfigFile(v); err != nil {
				return err
			}
			nadc.SetupLogging(v.GetBool("verbose"))
			return nil
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	root.PersistentFlags().String("config", "", "configuration file (default nadc.toml in /etc/nadc or .)")

	root.AddCommand(
		newBatchCmd(v, "calibrate", "Calibrate Level-1c products and store the records", runner.Calibrate),
		newBatchCmd(v, "ingest", "Store the ground pixels of ADAGUC derived products", runner.Ingest),
		newPatchCmd(v),
		newSchemaCmd(v),
		newTablesCmd(v),
	)
	return root
}

type batchFunc func(ctx context.Context, opts runner.Options, files []string) (runner.Summary, error)

func newBatchCmd(v *viper.Viper, use, short string, run batchFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " FILE...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptions(v)
			if err != nil {
				return err
			}
			summary, err := run(cmd.Context(), opts, args)
			if err != nil {
				return err
			}
			return summaryErr(summary)
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func newPatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch FILE...",
		Short: "Write the SDMF PPG factors and bad pixel mask into Level-1c products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptions(v)
			if err != nil {
				return err
			}
			if opts.SDMF == "" {
				return nadc.Fatalf(nadc.ErrParam, "patch", "--sdmf is required")
			}
			opts.Out = ""
			r, err := runner.New(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer r.Close()
			return summaryErr(r.PatchFiles(cmd.Context(), args))
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func newSchemaCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [FAMILY...]",
		Short: "Create the PostgreSQL tables of derived product or Level-1c (SCI_*) families",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := v.GetString("dsn")
			if dsn == "" {
				return nadc.Fatalf(nadc.ErrParam, "schema", "--dsn is required")
			}
			if len(args) == 0 {
				args = adaguc.Names()
			}
			for _, name := range args {
				if strings.HasPrefix(strings.ToUpper(name), "SCI_") {
					if err := store.CreateRecordSchema(cmd.Context(), dsn, strings.ToUpper(name)); err != nil {
						return fmt.Errorf("error creating schema for %s: %v", name, err)
					}
					log.Infof("schema for %s created", name)
					continue
				}
				fam, ok := adaguc.Lookup(name)
				if !ok {
					return nadc.Fatalf(nadc.ErrParam, "schema", "unknown product family %q", name)
				}
				if err := store.CreateSchema(cmd.Context(), dsn, fam.Name, fam.Columns); err != nil {
					return fmt.Errorf("error creating schema for %s: %v", fam.Name, err)
				}
				log.Infof("schema for %s created", fam.Name)
			}
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "PostgreSQL connection string")
	return cmd
}

func newTablesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables ORBIT OUT.h5",
		Short: "Export the calibration tables valid for one orbit into a new SDMF store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orbit, err := strconv.Atoi(args[0])
			if err != nil || orbit <= 0 {
				return nadc.Fatalf(nadc.ErrParam, "tables", "invalid orbit %q", args[0])
			}
			flags, err := calib.ParseFlags(v.GetString("calib"))
			if err != nil {
				return nadc.Wrap(nadc.ErrParam, nadc.Fatal, "calib", err)
			}
			src, err := sdmf.Open(v.GetString("sdmf"))
			if err != nil {
				return err
			}
			src.PPGOverride = true
			tabs, err := src.Load(orbit, flags|calib.PPG|calib.BadPixel)
			if err != nil {
				return err
			}
			if err := sdmf.WriteTables(args[1], tabs); err != nil {
				return err
			}
			log.Infof("tables of orbit %d written to %s", orbit, args[1])
			return nil
		},
	}
	cmd.Flags().String("sdmf", "", "path to the SDMF calibration store (HDF5)")
	cmd.Flags().String("calib", defaultCalib, "calibration steps whose tables are exported")
	return cmd
}

// summaryErr turns a run with failed files into an error.
func summaryErr(s runner.Summary) error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("run %s: %d of %d files failed, first error: %v",
		s.RunID, s.Failed, s.Processed+s.Skipped+s.Failed, s.Err)
}
