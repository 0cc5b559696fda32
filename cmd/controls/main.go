package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/goccy/go-json"

	"qrprocess-pi/pkg/camera"
	"qrprocess-pi/pkg/types"
)

func main() {
	devName := camera.DefaultDevice
	text := false
	flag.StringVar(&devName, "d", devName, "device name (path)")
	flag.BoolVar(&text, "text", false, "print one line per control instead of json")
	flag.Parse()

	cam := camera.New(devName, types.PositionBack)
	infos, err := cam.Controls()
	if err != nil {
		log.Fatalf("failed to read controls of %s: %s", devName, err)
	}

	if text {
		for _, info := range infos {
			fmt.Println(info)
			for i, m := range info.MenuItems {
				fmt.Printf("\t(%d) Menu %s\n", i, m)
			}
		}
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(infos); err != nil {
		log.Fatal(err)
	}
}
