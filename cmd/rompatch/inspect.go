package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/tdb"
)

func inspectCmd() *cli.Command {
	var showFields bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Report what a source image or database file looks like",
		ArgsUsage: "<image>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fields", Usage: "list table columns when the file is a TDB database", Destination: &showFields},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: no image path", 1)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			container := containerName(raw)

			image, err := patch.ReadSource(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Printf("%s: %d bytes", path, len(image))
			if container != "" {
				fmt.Printf(" (%s, %d compressed)", container, len(raw))
			}
			fmt.Println()

			traits := detectTraits(image)
			if len(traits) == 0 {
				fmt.Println("  no known signature")
			}
			for _, t := range traits {
				fmt.Printf("  %s\n", t)
			}

			if bytes.HasPrefix(image, tdb.Magic[:]) {
				printTables(image, showFields)
			}
			return nil
		},
	}
}

func containerName(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, []byte{0x28, 0xB5, 0x2F, 0xFD}):
		return "zstd"
	case bytes.HasPrefix(raw, []byte{0x1F, 0x8B}):
		return "gzip"
	}
	return ""
}

// cdSync opens every 2352-byte raw sector.
var cdSync = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

func detectTraits(image []byte) []string {
	var traits []string
	if len(image) >= 2352 && len(image)%2352 == 0 && bytes.HasPrefix(image, cdSync) {
		traits = append(traits, fmt.Sprintf("raw CD image, %d sectors of 2352 bytes", len(image)/2352))
	}
	if len(image) >= 0x200 && bytes.Equal(image[0x100:0x104], []byte("SEGA")) {
		traits = append(traits, "Genesis cartridge header")
	}
	if len(image)%0x8000 == 512 {
		traits = append(traits, "SNES copier header, 512 bytes")
	}
	if bytes.HasPrefix(image, []byte("BIGF")) {
		traits = append(traits, "BIGF archive")
	}
	if bytes.HasPrefix(image, tdb.Magic[:]) {
		traits = append(traits, "TDB database")
	}
	return traits
}

func printTables(image []byte, showFields bool) {
	db, err := tdb.Parse(image)
	if err != nil {
		fmt.Printf("  (table parse error: %v)\n", err)
		return
	}
	for _, name := range db.Tables() {
		table, ok := db.Table(name)
		if !ok {
			continue
		}
		fmt.Printf("  table %-4s records=%d/%d recordSize=%d fields=%d\n",
			name, table.Len(), table.Capacity(), table.RecordSize(), len(table.Fields()))
		if !showFields {
			continue
		}
		for _, f := range table.Fields() {
			fmt.Printf("    %-4s type=%d bit=%d width=%d\n", f.Name, f.Type, f.BitOffset, f.BitWidth)
		}
	}
}
