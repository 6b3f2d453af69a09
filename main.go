package main

import (
	"fmt"

	"github.com/chatfabric/notify-server/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
