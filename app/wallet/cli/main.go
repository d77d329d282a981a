package main

import "github.com/streampay/streampay/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
