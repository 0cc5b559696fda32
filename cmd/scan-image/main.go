package main

import (
	"context"
	"flag"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"

	"qrprocess-pi/pkg/camera"
	"qrprocess-pi/pkg/capture"
	"qrprocess-pi/pkg/decoder"
	"qrprocess-pi/pkg/types"
)

type result struct {
	Source  string         `json:"source"`
	Type    types.CodeType `json:"type"`
	Payload *string        `json:"payload"`
	Bounds  types.Rect     `json:"bounds"`
}

// scan-image decodes the image files given as arguments, or frames of a camera when
// there are none.
func main() {
	devName := camera.DefaultDevice
	flag.StringVar(&devName, "d", devName, "device name (path)")
	codes := flag.String("codes", "all", "comma separated code types")
	timeout := flag.Duration("timeout", 10*time.Second, "give up on the camera after")
	flag.Parse()

	symbologies, err := types.ParseCodeTypes(*codes)
	if err != nil {
		log.Fatal(err)
	}
	dec := decoder.New(decoder.WithTryHarder(true))
	enc := json.NewEncoder(os.Stdout)

	if flag.NArg() > 0 {
		for _, path := range flag.Args() {
			img, err := readImage(path)
			if err != nil {
				log.Fatal(err)
			}
			objs, err := dec.Decode(img, symbologies)
			if err != nil {
				log.Fatal(err)
			}
			report(enc, path, objs)
		}
		return
	}

	if err := scanCamera(devName, dec, symbologies, *timeout, enc); err != nil {
		log.Fatal(err)
	}
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func scanCamera(devName string, dec *decoder.Decoder, symbologies []types.CodeType, timeout time.Duration, enc *json.Encoder) error {
	cam := camera.New(devName, types.PositionBack)
	in, err := cam.NewInput()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	preset, ok := capture.BestPreset(cam, capture.ScanPresets)
	if !ok {
		preset = capture.PresetHigh
	}
	frames, err := in.Start(ctx, preset)
	if err != nil {
		return err
	}
	defer in.Stop()

	n := 0
	for f := range frames {
		n++
		img, release, err := f.Image()
		if err != nil {
			log.Printf("frame %d: %s", n, err)
			continue
		}
		objs, err := dec.Decode(img, symbologies)
		release()
		if err != nil {
			return err
		}
		if len(objs) > 0 {
			report(enc, devName, objs)
			return nil
		}
	}
	log.Printf("no code found in %d frames", n)

	return nil
}

func report(enc *json.Encoder, source string, objs []capture.Object) {
	for _, o := range objs {
		if err := enc.Encode(result{Source: source, Type: o.Type, Payload: o.Payload, Bounds: o.Bounds}); err != nil {
			log.Fatal(err)
		}
	}
}
