package main

import (
	"os"

	"github.com/cenkalti/log"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"

	"github.com/cenkalti/drizzle/internal/jsonutil"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/metainfo"
	"github.com/cenkalti/drizzle/torrent"
)

// Version of the client. Set with ldflags.
var Version = "0001"

const defaultConfig = "~/.drizzle.yaml"

func main() {
	metainfo.Creator = "drizzle/" + Version

	app := cli.NewApp()
	app.Name = "drizzle"
	app.Usage = "BitTorrent client"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: defaultConfig,
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored output",
		},
	}
	app.Before = func(c *cli.Context) error {
		logger.SetDebug(c.GlobalBool("debug"))
		if c.GlobalBool("no-color") {
			jsonutil.DisableColor()
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "download",
			Usage:     "download a torrent and seed it until interrupted",
			ArgsUsage: "<torrent file>",
			Action:    handleDownload,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "data-dir, w",
					Usage: "where to download",
				},
				cli.IntFlag{
					Name:  "port, p",
					Usage: "listen port for incoming peer connections",
				},
				cli.StringSliceFlag{
					Name:  "peer",
					Usage: "add peer `ADDR` in host:port form, may be given multiple times",
				},
				cli.BoolFlag{
					Name:  "exit",
					Usage: "exit after download is completed instead of seeding",
				},
			},
		},
		{
			Name:      "info",
			Usage:     "print metadata of a torrent file",
			ArgsUsage: "<torrent file>",
			Action:    handleInfo,
		},
		{
			Name:      "create",
			Usage:     "create a torrent file from a file or directory",
			ArgsUsage: "<file or directory>",
			Action:    handleCreate,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write torrent to `FILE`, defaults to name of the input with .torrent extension",
				},
				cli.StringSliceFlag{
					Name:  "tracker, t",
					Usage: "tracker `URL`, each one is put in a separate tier",
				},
				cli.UintFlag{
					Name:  "piece-length, l",
					Usage: "piece length in KiB",
					Value: 256,
				},
				cli.BoolFlag{
					Name:  "private",
					Usage: "mark torrent as private",
				},
				cli.StringFlag{
					Name:  "comment",
					Usage: "comment field of the torrent",
				},
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*torrent.Config, error) {
	filename, err := homedir.Expand(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	return torrent.LoadConfig(filename)
}

func readMetaInfo(filename string) (*metainfo.MetaInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metainfo.New(f)
}
