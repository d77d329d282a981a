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

var (
	withdrawStream uint64
	withdrawAmount uint64
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw from a stream.",
	Run:   withdrawRun,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)
	withdrawCmd.Flags().Uint64VarP(&withdrawStream, "stream", "s", 0, "Stream to withdraw from.")
	withdrawCmd.Flags().Uint64Var(&withdrawAmount, "amount", 0, "Amount to withdraw.")
	withdrawCmd.MarkFlagRequired("stream")
	withdrawCmd.MarkFlagRequired("amount")
}

func withdrawRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	body := struct {
		Caller string `json:"caller"`
		Amount uint64 `json:"amount"`
	}{
		Caller: string(database.PublicKeyToAccountID(privateKey.PublicKey)),
		Amount: withdrawAmount,
	}

	data, err := json.Marshal(body)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/streams/%d/withdraw", url, withdrawStream), "application/json", bytes.NewReader(data))
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
