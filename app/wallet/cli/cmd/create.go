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
	createRecipient      string
	createAsset          string
	createDeposit        uint64
	createStart          uint64
	createStop           uint64
	createCompounding    bool
	createSenderShare    string
	createRecipientShare string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new stream to a recipient.",
	Run:   createRun,
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVarP(&createRecipient, "recipient", "r", "", "Recipient of the stream.")
	createCmd.Flags().StringVar(&createAsset, "asset", "", "Asset to stream.")
	createCmd.Flags().Uint64VarP(&createDeposit, "deposit", "d", 0, "Total amount to stream.")
	createCmd.Flags().Uint64Var(&createStart, "start", 0, "Unix time the stream starts.")
	createCmd.Flags().Uint64Var(&createStop, "stop", 0, "Unix time the stream stops.")
	createCmd.Flags().BoolVar(&createCompounding, "compounding", false, "Create a compounding stream.")
	createCmd.Flags().StringVar(&createSenderShare, "sender-share", "0.5", "Sender share of the interest.")
	createCmd.Flags().StringVar(&createRecipientShare, "recipient-share", "0.5", "Recipient share of the interest.")
	createCmd.MarkFlagRequired("recipient")
	createCmd.MarkFlagRequired("asset")
	createCmd.MarkFlagRequired("deposit")
	createCmd.MarkFlagRequired("start")
	createCmd.MarkFlagRequired("stop")
}

func createRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	body := struct {
		Sender         string `json:"sender"`
		Recipient      string `json:"recipient"`
		Asset          string `json:"asset"`
		Deposit        uint64 `json:"deposit"`
		StartTime      uint64 `json:"start_time"`
		StopTime       uint64 `json:"stop_time"`
		Compounding    bool   `json:"compounding"`
		SenderShare    string `json:"sender_share"`
		RecipientShare string `json:"recipient_share"`
	}{
		Sender:         string(database.PublicKeyToAccountID(privateKey.PublicKey)),
		Recipient:      createRecipient,
		Asset:          createAsset,
		Deposit:        createDeposit,
		StartTime:      createStart,
		StopTime:       createStop,
		Compounding:    createCompounding,
		SenderShare:    createSenderShare,
		RecipientShare: createRecipientShare,
	}

	data, err := json.Marshal(body)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/streams", url), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		StreamID uint64 `json:"stream_id"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if result.Error != "" {
		log.Fatal(result.Error)
	}

	fmt.Println("Stream:", result.StreamID)
}
