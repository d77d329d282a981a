package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/streampay/streampay/foundation/streaming/database"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new private key.",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(accountPath, 0755); err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(accountPath, accountName)
	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Account:", database.PublicKeyToAccountID(privateKey.PublicKey))
	fmt.Println("Key saved to:", path)
}
