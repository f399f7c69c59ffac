package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func ResetTarget() error {
	session, dev, err := openSession()
	if err != nil {
		return err
	}
	defer dev.Close()

	log.Info("Rebooting target ...")
	return session.Reboot()
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reboot the target device",
	Long:  "",
	Run: func(cmd *cobra.Command, args []string) {
		if err := ResetTarget(); err != nil {
			// The device drops off the bus on reboot; a stalled control
			// transfer here usually means the reset already took effect.
			log.Warnf("Reset returned %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
