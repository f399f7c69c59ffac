package cmd

import (
	"fmt"
	"os"

	"github.com/kvreeken/usbnor/norflash"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	tmpDumpAddr    = uint32(0)
	tmpDumpLen     = uint32(0)
	tmpDumpOutPath = ""
)

func DumpFlash(addr, length uint32, outPath string) error {
	session, dev, err := openSession()
	if err != nil {
		return err
	}
	defer dev.Close()

	flash := session.Ctl.Flash()
	if !flash.Contains(addr, int(length)) {
		return fmt.Errorf("range [%#010x, %#010x) outside flash region", addr, addr+length)
	}

	data, err := session.Target.BurstRead(addr, int(length))
	if err != nil {
		return err
	}
	log.Infof("Read %d bytes from %#010x, CRC-16 %#04x", len(data), addr, norflash.Checksum(data))

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("writing dump file: %w", err)
	}
	log.Infof("Dump written to '%s'", outPath)
	return nil
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read a flash address range back to a file",
	Long:  "",
	Run: func(cmd *cobra.Command, args []string) {
		if tmpDumpLen == 0 || len(tmpDumpOutPath) == 0 {
			fmt.Println("Error: dump needs a length (`-n`) and an output file (`-o`)")
			cmd.Usage()
			return
		}
		if err := DumpFlash(tmpDumpAddr, tmpDumpLen, tmpDumpOutPath); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().Uint32VarP(&tmpDumpAddr, "addr", "a", 0, "first flash address to read")
	dumpCmd.Flags().Uint32VarP(&tmpDumpLen, "length", "n", 0, "number of bytes to read")
	dumpCmd.Flags().StringVarP(&tmpDumpOutPath, "out", "o", "", "output file for the dump")
}
