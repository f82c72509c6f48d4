package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/aqlm/internal/kernels"
	"github.com/samcharles93/aqlm/internal/logger"
	"github.com/samcharles93/aqlm/pkg/aqlm"
)

type benchRun struct {
	Duration time.Duration `json:"duration_ns"`
	GFLOPS   float64       `json:"gflops"`
	Launches uint64        `json:"launches"`
}

type benchReport struct {
	Scheme    string     `json:"scheme"`
	Backend   string     `json:"backend"`
	Rows      int64      `json:"rows"`
	Cols      int64      `json:"cols"`
	Batch     int64      `json:"batch"`
	Runs      []benchRun `json:"runs"`
	AvgGFLOPS float64    `json:"avg_gflops"`
}

func benchCmd() *cli.Command {
	var (
		scheme string
		rows   int64
		cols   int64
		batch  int64
		runs   int64
		warmup int64
		seed   int64
		asJSON bool
	)

	flags := append([]cli.Flag{}, commonBackendFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "scheme",
			Usage:       "quantization scheme (1x16, 2x8)",
			Value:       "2x8",
			Destination: &scheme,
		},
		&cli.Int64Flag{
			Name:        "rows",
			Aliases:     []string{"m"},
			Usage:       "output features",
			Value:       4096,
			Destination: &rows,
		},
		&cli.Int64Flag{
			Name:        "cols",
			Aliases:     []string{"k"},
			Usage:       "input features (multiple of 8)",
			Value:       4096,
			Destination: &cols,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "batch size",
			Value:       8,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &runs,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmup,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "rng seed",
			Value:       42,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the report as JSON",
			Destination: &asJSON,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run standardized matmul benchmarks",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyBenchConfig(cmd, LoadConfig(), &rows, &cols, &batch, &runs, &warmup)

			sch, err := aqlm.ParseScheme(scheme)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			engine, err := aqlm.NewEngine(backendName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: backend: %v", err), 1)
			}
			defer func() { _ = engine.Close() }()

			rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
			codes, books, scales, err := randomWeight(rng, sch, int(rows), int(cols))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			input := randomInput(rng, int(batch), int(cols))

			matmat := engine.Code1x16MatMat
			if sch == aqlm.Scheme2x8 {
				matmat = engine.Code2x8MatMat
			}

			for i := range int(warmup) {
				log.Debug("warmup run", "run", i+1)
				if _, err := matmat(input, codes, books, scales); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			flop := 2 * float64(rows) * float64(cols) * float64(batch)
			report := benchReport{
				Scheme:  string(sch),
				Backend: engine.Backend(),
				Rows:    rows,
				Cols:    cols,
				Batch:   batch,
			}
			for i := range int(runs) {
				log.Debug("benchmark run", "run", i+1)
				before := kernels.Launches()
				start := time.Now()
				if _, err := matmat(input, codes, books, scales); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				dur := time.Since(start)
				report.Runs = append(report.Runs, benchRun{
					Duration: dur,
					GFLOPS:   flop / dur.Seconds() / 1e9,
					Launches: kernels.Launches() - before,
				})
			}

			var sum float64
			for _, r := range report.Runs {
				sum += r.GFLOPS
			}
			report.AvgGFLOPS = sum / float64(len(report.Runs))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Println("=== AQLM Benchmark ===")
			fmt.Printf("Scheme:   %s\n", report.Scheme)
			fmt.Printf("Backend:  %s\n", report.Backend)
			fmt.Printf("Shape:    M=%d K=%d B=%d\n", rows, cols, batch)
			fmt.Printf("CPUs:     %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Println()
			fmt.Printf("%-6s %12s %10s %10s\n", "Run", "Duration", "GFLOP/s", "Launches")
			for i, r := range report.Runs {
				fmt.Printf("%-6d %12s %10.2f %10d\n", i+1, r.Duration.Round(time.Microsecond), r.GFLOPS, r.Launches)
			}
			fmt.Printf("\n%-6s %12s %10.2f\n", "Avg", "", report.AvgGFLOPS)

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
