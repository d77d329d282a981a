package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/streampay/streampay/foundation/streaming/database"
)

var cancelStream uint64

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a stream.",
	Run:   cancelRun,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	cancelCmd.Flags().Uint64VarP(&cancelStream, "stream", "s", 0, "Stream to cancel.")
	cancelCmd.MarkFlagRequired("stream")
}

func cancelRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	body := struct {
		Caller string `json:"caller"`
	}{
		Caller: string(database.PublicKeyToAccountID(privateKey.PublicKey)),
	}

	data, err := json.Marshal(body)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/streams/%d/cancel", url, cancelStream), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if result.Error != "" {
		log.Fatal(result.Error)
	}

	fmt.Println(result.Status)
}
