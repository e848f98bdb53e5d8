package main

import (
	"fmt"
	"io"
	"os"

	"github.com/danmuck/posewire/internal/config"
	"github.com/danmuck/posewire/internal/logging"
	"github.com/urfave/cli"
)

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "path to a posewire TOML config (defaults are used when empty)",
}

func main() {
	app := newApp(os.Stdin, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "posectl: %v\n", err)
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "posectl"
	app.Usage = "encode, decode and serve pose records in the posewire TLV format"
	app.Version = "v0.0.1"
	app.Writer = out
	app.Flags = []cli.Flag{configFlag}
	app.Metadata = map[string]interface{}{}
	app.Before = func(c *cli.Context) error {
		cfg, err := loadConfig(c.GlobalString("config"))
		if err != nil {
			return err
		}
		c.App.Metadata[metadataConfig] = cfg
		logging.ConfigureWith(cfg.Logging())
		return nil
	}
	app.Commands = []cli.Command{
		encodeCommand(in, out),
		decodeCommand(in, out),
		serveCommand(),
		configCommand(out),
	}
	return app
}

const metadataConfig = "config"

// loadConfig resolves the global --config flag once, before any command runs.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// appConfig returns the config loaded in app.Before.
func appConfig(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[metadataConfig].(config.Config); ok {
		return cfg
	}
	return config.Default()
}
