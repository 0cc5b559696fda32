package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"qrprocess-pi/pkg/qrgen"
)

func main() {
	out := flag.String("o", "qr.png", "output png file")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		log.Fatal("usage: qrgen [-o file.png] text...")
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	if err := qrgen.WritePNG(f, text); err != nil {
		log.Fatal(err)
	}
	log.Printf("Saved file: %s", *out)
}
