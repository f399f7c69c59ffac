package cmd

import (
	"fmt"

	"github.com/kvreeken/usbnor/norflash"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpBurnFilePath = ""
	tmpBurnAddr     = uint32(0)
	tmpBurnNoVerify = false
	tmpBurnNoReboot = false
)

func BurnFirmware(path string, addr uint32, verify, reboot bool) error {
	image, err := norflash.LoadImage(path)
	if err != nil {
		return err
	}
	log.Infof("Opened firmware blob '%s', %s", path, image.String())

	session, dev, err := openSession()
	if err != nil {
		return err
	}
	defer dev.Close()

	lastStage := ""
	burner := session.NewBurner(func(stage string, done, total int) {
		if stage != lastStage {
			fmt.Println()
			lastStage = stage
		}
		fmt.Printf("\r%s: %d/%d bytes", stage, done, total)
		if done == total {
			fmt.Println()
		}
	})

	if err := burner.Run(addr, image.Data, verify); err != nil {
		return err
	}
	log.Infof("Firmware written to %#010x, final state %s", addr, burner.State())

	if reboot {
		log.Info("Rebooting target ...")
		if err := session.Reboot(); err != nil {
			log.Warnf("Reboot poke failed (device may already be resetting): %v", err)
		}
	}
	return nil
}

var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Erase, program and verify a firmware image",
	Long:  "",
	Run: func(cmd *cobra.Command, args []string) {
		if len(tmpBurnFilePath) == 0 {
			fmt.Println("Error: no firmware file given for burning")
			fmt.Println()
			fmt.Println("Provide a raw binary image with the `-f` flag and its target flash")
			fmt.Println("address with the `-a` flag. The address must lie inside the flash")
			fmt.Println("region declared by the device's register descriptor.")
			cmd.Usage()
			return
		}
		if err := BurnFirmware(tmpBurnFilePath, tmpBurnAddr, !tmpBurnNoVerify, !tmpBurnNoReboot); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(burnCmd)
	burnCmd.Flags().StringVarP(&tmpBurnFilePath, "file", "f", "", "path to firmware image in raw binary format")
	burnCmd.Flags().Uint32VarP(&tmpBurnAddr, "addr", "a", 0, "target flash address of the image")
	burnCmd.Flags().BoolVar(&tmpBurnNoVerify, "no-verify", false, "skip read-back verification after programming")
	burnCmd.Flags().BoolVar(&tmpBurnNoReboot, "no-reboot", false, "do not reboot the target after a successful burn")
}
