package cmd

import (
	"os"

	"github.com/kvreeken/usbnor/norflash"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose = false

var rootCmd = &cobra.Command{
	Use:   "usbnor",
	Short: "Field update tool for SPI NOR flash behind a USB debug bridge",
	Long: "usbnor erases and rewrites firmware images on a SPI NOR flash whose only\n" +
		"access path is the vendor register file exposed by the target's USB\n" +
		"bootloader/debug bridge.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// openSession opens the first matching device and loads its register map.
// The returned USBTarget must be closed by the caller.
func openSession() (*norflash.Session, *norflash.USBTarget, error) {
	dev, err := norflash.OpenUSBTarget()
	if err != nil {
		return nil, nil, err
	}
	session, err := norflash.NewSession(dev)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return session, dev, nil
}
