package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/logger"
	"github.com/samcharles93/aqlm/internal/tensor"
	"github.com/samcharles93/aqlm/pkg/aqlm"
)

func selftestCmd() *cli.Command {
	var seed int64

	flags := append([]cli.Flag{}, commonBackendFlags()...)
	flags = append(flags, &cli.Int64Flag{
		Name:        "seed",
		Usage:       "rng seed",
		Value:       7,
		Destination: &seed,
	})

	return &cli.Command{
		Name:  "selftest",
		Usage: "Validate the fused kernels against a dense reference",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			engine, err := aqlm.NewEngine(backendName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: backend: %v", err), 1)
			}
			defer func() { _ = engine.Close() }()

			rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
			failed := 0
			for _, scheme := range []aqlm.Scheme{aqlm.Scheme1x16, aqlm.Scheme2x8} {
				for _, c := range []struct{ m, k, b int }{
					{8, 8, 1},
					{16, 64, 4},
					{128, 256, 3},
				} {
					name := fmt.Sprintf("%s M=%d K=%d B=%d", scheme, c.m, c.k, c.b)
					if err := checkAgainstReference(engine, rng, scheme, c.m, c.k, c.b); err != nil {
						failed++
						fmt.Printf("FAIL %s: %v\n", name, err)
						continue
					}
					fmt.Printf("ok   %s\n", name)
				}
				if err := checkEmptyBatch(engine, rng, scheme); err != nil {
					failed++
					fmt.Printf("FAIL %s empty batch: %v\n", scheme, err)
				} else {
					fmt.Printf("ok   %s empty batch\n", scheme)
				}
			}

			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d checks failed", failed), 1)
			}
			log.Info("selftest passed", "backend", engine.Backend())
			return nil
		},
	}
}

func checkAgainstReference(engine *aqlm.Engine, rng *rand.Rand, scheme aqlm.Scheme, m, k, b int) error {
	codes, books, scales, err := randomWeight(rng, scheme, m, k)
	if err != nil {
		return err
	}
	input := randomInput(rng, b, k)

	var got *tensor.Tensor
	if scheme == aqlm.Scheme1x16 {
		got, err = engine.Code1x16MatMat(input, codes, books, scales)
	} else {
		got, err = engine.Code2x8MatMat(input, codes, books, scales)
	}
	if err != nil {
		return err
	}
	if got.Dim(0) != b || got.Dim(-1) != m {
		return fmt.Errorf("output shape %v, want (%d, %d)", got.Shape, b, m)
	}

	want := denseReference(scheme, input, codes, books, scales)
	gotVals := make([]float32, got.NumEl())
	got.DecodeFloat32(gotVals)
	for i := range want {
		if !closeEnough(gotVals[i], want[i]) {
			return fmt.Errorf("element %d: got %v, want %v", i, gotVals[i], want[i])
		}
	}
	return nil
}

func checkEmptyBatch(engine *aqlm.Engine, rng *rand.Rand, scheme aqlm.Scheme) error {
	const m, k = 8, 16
	codes, books, scales, err := randomWeight(rng, scheme, m, k)
	if err != nil {
		return err
	}
	input := tensor.New(tensor.F32, 0, k)

	before := kernels.Launches()
	var got *tensor.Tensor
	if scheme == aqlm.Scheme1x16 {
		got, err = engine.Code1x16MatMat(input, codes, books, scales)
	} else {
		got, err = engine.Code2x8MatMat(input, codes, books, scales)
	}
	if err != nil {
		return err
	}
	if got.Dim(0) != 0 || got.Dim(-1) != m {
		return fmt.Errorf("output shape %v, want (0, %d)", got.Shape, m)
	}
	if d := kernels.Launches() - before; d != 0 {
		return fmt.Errorf("%d kernel launches for an empty batch", d)
	}
	return nil
}

// closeEnough tolerates the reassociation the unrolled kernels introduce.
func closeEnough(got, want float32) bool {
	diff := math.Abs(float64(got - want))
	return diff <= 1e-3*math.Max(1, math.Abs(float64(want)))
}
