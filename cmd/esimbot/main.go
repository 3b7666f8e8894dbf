package main

import (
	"log"

	corecmd "github.com/m3rciful/esimbot/core/cmd"
	"github.com/m3rciful/esimbot/internal/app"
	"github.com/m3rciful/esimbot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.New(carrier.(*config.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
