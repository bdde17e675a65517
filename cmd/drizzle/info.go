package main

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/cenkalti/drizzle/internal/jsonutil"
	"github.com/cenkalti/drizzle/internal/metainfo"
)

type torrentInfo struct {
	Name         string
	InfoHash     string
	PieceLength  uint32
	NumPieces    uint32
	TotalLength  int64
	Private      bool
	Files        []metainfo.File
	Trackers     [][]string
	Comment      string    `json:",omitempty"`
	CreatedBy    string    `json:",omitempty"`
	CreationDate time.Time `json:",omitempty"`
}

func handleInfo(c *cli.Context) error {
	if c.NArg() == 0 {
		return errNoTorrentFile
	}
	mi, err := readMetaInfo(c.Args().Get(0))
	if err != nil {
		return err
	}
	ti := torrentInfo{
		Name:         mi.Info.Name,
		InfoHash:     hex.EncodeToString(mi.Info.Hash[:]),
		PieceLength:  mi.Info.PieceLength,
		NumPieces:    mi.Info.NumPieces,
		TotalLength:  mi.Info.TotalLength,
		Private:      mi.Info.IsPrivate(),
		Files:        mi.Info.GetFiles(),
		Trackers:     mi.AnnounceList,
		Comment:      mi.Comment,
		CreatedBy:    mi.CreatedBy,
		CreationDate: mi.CreationDate,
	}
	b, err := jsonutil.MarshalPretty(ti)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(b, '\n'))
	return err
}

func handleCreate(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowCommandHelp(c, "create")
	}
	root := filepath.Clean(c.Args().Get(0))
	fi, err := os.Stat(root)
	if err != nil {
		return err
	}
	var (
		files []metainfo.FileDict
		paths []string
	)
	if fi.IsDir() {
		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, metainfo.FileDict{
				Length: info.Size(),
				Path:   strings.Split(filepath.ToSlash(rel), "/"),
			})
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		files = []metainfo.FileDict{{Length: fi.Size()}}
		paths = []string{root}
	}

	readers := make([]io.Reader, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		readers = append(readers, f)
	}

	name := filepath.Base(root)
	info, err := metainfo.NewInfoBytes(name, files, uint32(c.Uint("piece-length"))*1024, c.Bool("private"), io.MultiReader(readers...))
	if err != nil {
		return err
	}
	var trackers [][]string
	for _, tr := range c.StringSlice("tracker") {
		trackers = append(trackers, []string{tr})
	}
	b, err := metainfo.NewBytes(info, trackers, c.String("comment"))
	if err != nil {
		return err
	}
	out := c.String("out")
	if out == "" {
		out = name + ".torrent"
	}
	return os.WriteFile(out, b, 0640)
}
