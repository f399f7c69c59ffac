package cmd

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func PrintTargetInfo() error {
	session, dev, err := openSession()
	if err != nil {
		return err
	}
	defer dev.Close()

	fmt.Printf("Gateware revision : %s\n", session.Map.Revision)

	regions := session.Map.Regions()
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("Memory regions:")
	for _, name := range names {
		r := regions[name]
		fmt.Printf("\t%-16s base %#010x length %#x\n", name, r.Base, r.Length)
	}

	mfg, err := session.Ctl.ReadID(0)
	if err != nil {
		return err
	}
	dev2, err := session.Ctl.ReadID(1)
	if err != nil {
		return err
	}
	fmt.Printf("Flash ID          : %02x/%02x\n", byte(mfg), byte(dev2))

	status, err := session.Ctl.ReadStatus(false)
	if err != nil {
		return err
	}
	security, err := session.Ctl.ReadSecurity()
	if err != nil {
		return err
	}
	fmt.Printf("Status register   : %#02x\n", status)
	fmt.Printf("Security register : %#02x\n", security)
	return nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show register map, revision and flash state of the target",
	Long:  "",
	Run: func(cmd *cobra.Command, args []string) {
		if err := PrintTargetInfo(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
