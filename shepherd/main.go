package main

import (
	"os"

	"github.com/ShepherdCMS/shepherd-app/log"
	"github.com/ShepherdCMS/shepherd-app/shepherd/shepherdcli"
)

func main() {
	app := shepherdcli.GetApp()
	if err := app.Run(os.Args); err != nil {
		log.API.Fatal(err)
	}
}
