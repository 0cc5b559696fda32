package main

import (
	"os"

	"go.uber.org/zap"

	"qrprocess-pi/pkg/camera"
	"qrprocess-pi/pkg/camera/mediadev"
	"qrprocess-pi/pkg/config"
	"qrprocess-pi/pkg/decoder"
	"qrprocess-pi/pkg/dispatch"
	"qrprocess-pi/pkg/permission"
	"qrprocess-pi/pkg/scanner"
	"qrprocess-pi/pkg/server"
	"qrprocess-pi/pkg/utils"
	"qrprocess-pi/pkg/video"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

func main() {
	defer logger.Sync()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatal(err)
	}
	if err = utils.SetFormat(cfg.LogFormat); err != nil {
		logger.Fatal(err)
	}
	logger = utils.GetLogger()
	if err = utils.SetLevel(cfg.LogLevel); err != nil {
		logger.Fatal(err)
	}

	// the main queue of the headless host
	ui := dispatch.New("main")
	defer ui.Close()

	host := server.NewHost(cfg.Surface, cfg.Focus, cfg.AutoStart)
	frames := server.NewFrameStream()
	host.Preview().AddReceiver(frames)
	if cfg.Record != "" {
		rec := video.NewRecorder(cfg.Record, cfg.FPS)
		host.Preview().AddReceiver(rec)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error(err)
			}
		}()
	}

	opts := []scanner.Option{
		scanner.WithSelector(newSelector(cfg)),
		scanner.WithAuthorizer(newAuthorizer(cfg)),
		scanner.WithDecoder(decoder.New(decoder.WithTryHarder(true))),
		scanner.WithPosition(cfg.Position),
		scanner.WithUIQueue(ui),
	}
	if cfg.Simulator {
		opts = append(opts, scanner.WithSimulator())
	}
	sc := scanner.New(cfg.Codes, opts...)
	defer sc.Close()
	sc.SetDelegate(host)

	srv := server.New(sc, host, frames)
	if err = utils.ListenAndServe(srv.Handler(), cfg.Port); err != nil {
		logger.Error(err)
	}
}

func newSelector(cfg config.Config) scanner.DeviceSelector {
	if cfg.Backend == config.BackendMediaDevices {
		return mediadev.NewSelector(cfg.Device, cfg.FrontDevice)
	}
	sel := camera.NewSelector(cfg.Device, cfg.FrontDevice)
	sel.FPS = cfg.FPS
	return sel
}

func newAuthorizer(cfg config.Config) permission.Authorizer {
	if cfg.PermissionFile != "" {
		return &permission.FileAuthorizer{
			Path:     cfg.PermissionFile,
			Prompter: permission.TerminalPrompter{In: os.Stdin, Out: os.Stderr},
		}
	}
	dev := cfg.Device
	if dev == "" {
		dev = camera.DefaultDevice
	}
	return permission.DeviceNodeAuthorizer{Path: dev}
}
