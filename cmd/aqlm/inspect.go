package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/aqlm/pkg/acf"
)

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the layout of an .acf weight container",
		ArgsUsage: "<file.acf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the header as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: missing .acf path", 1)
			}

			f, err := acf.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %q: %v", path, err), 1)
			}
			defer func() { _ = f.Close() }()

			h := f.Header
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"version": h.Version,
					"scheme":  f.Scheme().String(),
					"dtype":   f.ElemType().String(),
					"rows":    h.Rows,
					"cols":    h.Cols,
					"banks":   h.Banks,
					"entries": h.Entries,
					"sections": map[string]any{
						"codes":     map[string]uint64{"offset": h.CodesOff, "size": h.CodesSize},
						"codebooks": map[string]uint64{"offset": h.BooksOff, "size": h.BooksSize},
						"scales":    map[string]uint64{"offset": h.ScalesOff, "size": h.ScalesSize},
					},
					"file_size": h.FileSize,
				})
			}

			fmt.Printf("File:      %s\n", path)
			fmt.Printf("Version:   %d\n", h.Version)
			fmt.Printf("Scheme:    %s\n", f.Scheme())
			fmt.Printf("DType:     %s\n", f.ElemType())
			fmt.Printf("Shape:     M=%d K=%d (banks=%d entries=%d)\n", h.Rows, h.Cols, h.Banks, h.Entries)
			fmt.Println()
			fmt.Printf("%-10s %12s %12s\n", "Section", "Offset", "Size")
			fmt.Printf("%-10s %12d %12d\n", "codes", h.CodesOff, h.CodesSize)
			fmt.Printf("%-10s %12d %12d\n", "codebooks", h.BooksOff, h.BooksSize)
			fmt.Printf("%-10s %12d %12d\n", "scales", h.ScalesOff, h.ScalesSize)
			fmt.Printf("\nTotal: %d bytes\n", h.FileSize)
			return nil
		},
	}
}
