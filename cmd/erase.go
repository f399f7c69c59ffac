package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpEraseAddr = uint32(0)
	tmpEraseLen  = uint32(0)
)

func EraseRange(addr, length uint32) error {
	session, dev, err := openSession()
	if err != nil {
		return err
	}
	defer dev.Close()

	burner := session.NewBurner(func(stage string, done, total int) {
		fmt.Printf("\r%s: %d/%d bytes", stage, done, total)
		if done == total {
			fmt.Println()
		}
	})
	if err := burner.Identify(); err != nil {
		return err
	}
	return burner.Erase(addr, int(length))
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase a flash address range (blanks it to 0xff)",
	Long:  "",
	Run: func(cmd *cobra.Command, args []string) {
		if tmpEraseLen == 0 {
			fmt.Println("Error: no length given, use `-n` to pass the number of bytes to erase")
			cmd.Usage()
			return
		}
		if err := EraseRange(tmpEraseAddr, tmpEraseLen); err != nil {
			log.Fatal(err)
		}
		log.Info("Erase finished")
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	eraseCmd.Flags().Uint32VarP(&tmpEraseAddr, "addr", "a", 0, "first flash address to erase")
	eraseCmd.Flags().Uint32VarP(&tmpEraseLen, "length", "n", 0, "number of bytes to erase (rounded up to erase granules)")
}
