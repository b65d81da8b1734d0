package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cloudkucooland/hzbridge"
	"github.com/cloudkucooland/hzbridge/config"
	"github.com/cloudkucooland/hzbridge/platform"

	"github.com/brutella/hc/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	var dir, file string
	var debug bool

	app := cli.App{
		Name:  "hzbridge",
		Usage: "expose Heatzy heaters to HomeKit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Value:       "config",
				Usage:       "configuration directory",
				Destination: &dir,
			},
			&cli.StringFlag{
				Name:        "config",
				Value:       "server.json",
				Usage:       "configuration file",
				Destination: &file,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "verbose logging",
				Destination: &debug,
			},
		},
		Action: func(c *cli.Context) error {
			if debug {
				log.Debug.Enable()
				logrus.SetLevel(logrus.DebugLevel)
			}

			fulldir, err := filepath.Abs(dir)
			if err != nil {
				log.Info.Panic("unable to get config directory", dir)
			}
			cfd := filepath.Join(fulldir, file)
			conf, err := loadConfig(cfd)
			if err != nil {
				log.Info.Panic(err)
			}
			conf.ConfigDir = fulldir
			conf.ConfigFile = cfd
			if conf.HCConfig.StoragePath == "" {
				conf.HCConfig.StoragePath = filepath.Join(fulldir, "hc")
			}
			config.Set(conf)

			// spin up platforms: log in, list heaters, build the switches
			hzbridge.BootstrapPlatforms(conf)

			// HC can only be started once all accessories are known
			if err := hzbridge.StartHC(); err != nil {
				log.Info.Panic(err)
			}

			// run all the background processes
			platform.Background()

			// wait for signal to shut down
			sigch := make(chan os.Signal, 3)
			signal.Notify(sigch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)

			// loop until signal sent
			sig := <-sigch

			log.Info.Printf("shutdown requested by signal: %s", sig)
			platform.ShutdownAllPlatforms()
			return nil
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Info.Panic(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conf config.Config
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, err
	}
	conf.Defaults()
	return &conf, nil
}
