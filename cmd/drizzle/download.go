package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/log"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli"

	"github.com/cenkalti/drizzle/internal/jsonutil"
	"github.com/cenkalti/drizzle/torrent"
)

var errNoTorrentFile = errors.New("give a torrent file as first argument")

func handleDownload(c *cli.Context) error {
	if c.NArg() == 0 {
		return errNoTorrentFile
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	mi, err := readMetaInfo(c.Args().Get(0))
	if err != nil {
		return err
	}
	t, err := torrent.New(mi, *cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			log.Errorln("cannot close torrent:", err)
		}
	}()
	err = t.Start()
	if err != nil {
		return err
	}
	if peers := c.StringSlice("peer"); len(peers) > 0 {
		err = t.AddPeers(peers)
		if err != nil {
			return err
		}
	}

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)

	bar := progressbar.DefaultBytes(mi.Info.TotalLength, "downloading "+t.Name())
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	completeC := t.NotifyComplete()
	for {
		select {
		case <-ticker.C:
			_ = bar.Set64(t.Stats().Bytes.Completed)
		case <-completeC:
			_ = bar.Set64(mi.Info.TotalLength)
			_ = bar.Finish()
			if c.Bool("exit") {
				return printStats(t)
			}
			completeC = nil
			fmt.Fprintln(os.Stderr, "download completed, seeding until interrupted")
		case err = <-t.NotifyError():
			return err
		case <-sigC:
			_ = bar.Exit()
			return printStats(t)
		}
	}
}

func printStats(t *torrent.Torrent) error {
	b, err := jsonutil.MarshalCompactPretty(t.Stats())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}
