package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/storectl"
)

func main() {

	opts, err := storectl.ParseFlags()
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := config.LoadConfig()
	app := storectl.NewApp(cfg, os.Stdin, os.Stdout)

	if err := app.Run(context.Background(), opts); err != nil {
		log.Fatalf("%v", err)
	}

}
