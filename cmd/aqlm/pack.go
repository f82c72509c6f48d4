package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/aqlm/internal/tensor"
	"github.com/samcharles93/aqlm/pkg/acf"
	"github.com/samcharles93/aqlm/pkg/aqlm"
	"github.com/samcharles93/aqlm/pkg/quant"
)

func packCmd() *cli.Command {
	var (
		schemeName string
		rows       int64
		cols       int64
		seed       int64
		densePath  string
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Quantize a dense weight and write an .acf container",
		ArgsUsage: "<out.acf>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "scheme",
				Usage:       "quantization scheme (1x16, 2x8); the 1x16 search is exhaustive and slow at large sizes",
				Value:       "2x8",
				Destination: &schemeName,
			},
			&cli.Int64Flag{
				Name:        "rows",
				Usage:       "output features M",
				Value:       64,
				Destination: &rows,
			},
			&cli.Int64Flag{
				Name:        "cols",
				Usage:       "reduction dim K (multiple of 8)",
				Value:       256,
				Destination: &cols,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "seed for the codebooks (and the weight when --dense is absent)",
				Value:       1,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "dense",
				Usage:       "raw little-endian float32 weight, row-major M x K; random when absent",
				Destination: &densePath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Args().First()
			if out == "" {
				return cli.Exit("error: missing output .acf path", 1)
			}
			scheme, err := aqlm.ParseScheme(schemeName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			m, k := int(rows), int(cols)

			rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
			var dense *tensor.Tensor
			if densePath != "" {
				dense, err = readDenseF32(densePath, m, k)
			} else {
				dense, err = randomDense(rng, m, k)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			w, err := packWeight(rng, scheme, dense)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := acf.Write(out, w); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %q: %v", out, err), 1)
			}

			fmt.Printf("Packed %s weight M=%d K=%d into %s\n", scheme, m, k, out)
			return nil
		},
	}
}

// packWeight quantizes dense against fresh random codebooks and assembles
// the container. Codebook training is out of scope; the entries are drawn
// from the same distribution bench uses.
func packWeight(rng *rand.Rand, scheme aqlm.Scheme, dense *tensor.Tensor) (acf.Weight, error) {
	banks, entries := 1, 1<<16
	acfScheme := acf.Scheme1x16
	if scheme == aqlm.Scheme2x8 {
		banks, entries = 2, 1<<8
		acfScheme = acf.Scheme2x8
	}

	bookVals := make([]float32, banks*entries*8)
	for i := range bookVals {
		bookVals[i] = rng.Float32()*2 - 1
	}
	books := tensor.FromFloat32(tensor.F32, []int{banks, entries, 1, 8}, bookVals)

	var res *quant.Result
	var err error
	if scheme == aqlm.Scheme1x16 {
		res, err = quant.Encode1x16(dense, books)
	} else {
		res, err = quant.Encode2x8(dense, books)
	}
	if err != nil {
		return acf.Weight{}, err
	}

	return acf.Weight{
		Scheme:    acfScheme,
		Codes:     res.Codes,
		Codebooks: books,
		Scales:    res.Scales,
	}, nil
}

func randomDense(rng *rand.Rand, m, k int) (*tensor.Tensor, error) {
	if k%8 != 0 {
		return nil, fmt.Errorf("cols %d is not a multiple of 8", k)
	}
	vals := make([]float32, m*k)
	for i := range vals {
		vals[i] = rng.Float32()*2 - 1
	}
	return tensor.FromFloat32(tensor.F32, []int{m, k}, vals), nil
}

func readDenseF32(path string, m, k int) (*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != m*k*4 {
		return nil, fmt.Errorf("%q holds %d bytes, want %d for %dx%d float32", path, len(data), m*k*4, m, k)
	}
	t := tensor.New(tensor.F32, m, k)
	copy(t.Data, data)
	return t, nil
}
