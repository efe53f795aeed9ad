package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"strings"
	"time"

	urfave "github.com/urfave/cli/v3"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
	"github.com/sbl8/histonet/model"
)

var perfTests = []string{"all", "vector", "linear", "conv", "activation", "model"}

// perfRun holds the settings of one histperf invocation.
type perfRun struct {
	w       io.Writer
	size    int
	iter    int
	verbose bool
	ops     []byte
	rng     *rand.Rand
}

func newPerfCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "perf",
		Usage: "Measures kernel and model forward throughput on this host",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "test",
				Usage: fmt.Sprintf("Test type [%s]", strings.Join(perfTests, ", ")),
				Value: "all",
			},
			&urfave.IntFlag{
				Name:  "size",
				Usage: "Test data size",
				Value: 1024,
			},
			&urfave.IntFlag{
				Name:  "iter",
				Usage: "Number of iterations",
				Value: 1000,
			},
			&urfave.StringSliceFlag{
				Name:  "op",
				Usage: "Activation to measure, repeat for several [identity, relu, sigmoid, tanh, softmax]",
				Value: []string{"relu", "sigmoid", "tanh", "softmax"},
			},
			&urfave.BoolFlag{
				Name:  "verbose",
				Usage: "Verbose output",
			},
		},
		Action: runPerf,
	}
}

func runPerf(_ context.Context, cmd *urfave.Command) error {
	p := &perfRun{
		w:       output(cmd),
		size:    cmd.Int("size"),
		iter:    cmd.Int("iter"),
		verbose: cmd.Bool("verbose"),
		rng:     rand.New(rand.NewSource(1)),
	}
	if p.size <= 0 || p.iter <= 0 {
		return fmt.Errorf("size (%d) and iter (%d) must be positive", p.size, p.iter)
	}
	for _, name := range cmd.StringSlice("op") {
		op, err := kernels.ParseOp(name)
		if err != nil {
			return err
		}
		p.ops = append(p.ops, op)
	}

	tests := map[string]func() error{
		"vector":     p.vectorTests,
		"linear":     p.linearTests,
		"conv":       p.convTests,
		"activation": p.activationTests,
		"model":      p.modelTests,
	}
	name := cmd.String("test")
	run, ok := tests[name]
	if name != "all" && !ok {
		return fmt.Errorf("unknown test type: %s", name)
	}

	p.header()
	if name != "all" {
		return run()
	}
	for _, n := range perfTests[1:] {
		if err := tests[n](); err != nil {
			return err
		}
	}
	return nil
}

func (p *perfRun) header() {
	host := kernels.Host()
	fmt.Fprintf(p.w, "Histonet Performance Analysis Tool\n")
	fmt.Fprintf(p.w, "==================================\n")
	fmt.Fprintf(p.w, "Go Version: %s\n", runtime.Version())
	fmt.Fprintf(p.w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(p.w, "CPU: %s\n", host.Brand)
	fmt.Fprintf(p.w, "Cores: %d physical, %d logical\n", host.PhysicalCores, host.LogicalCores)
	fmt.Fprintf(p.w, "Vector Lanes: %d\n", host.VectorLanes)
	if p.verbose {
		fmt.Fprintf(p.w, "Features: %s\n", strings.Join(host.Features, " "))
	}
	fmt.Fprintf(p.w, "Test Size: %d elements\n", p.size)
	fmt.Fprintf(p.w, "Iterations: %d\n", p.iter)
	fmt.Fprintf(p.w, "\n")
}

// mops converts n elements processed per iteration to millions per second.
func (p *perfRun) mops(n int, d time.Duration) float64 {
	return float64(n) * float64(p.iter) / d.Seconds() / 1e6
}

func gflops(ops int64, d time.Duration) float64 {
	return float64(ops) / d.Seconds() / 1e9
}

func (p *perfRun) vectorTests() error {
	fmt.Fprintf(p.w, "Vector Operations Performance\n")
	fmt.Fprintf(p.w, "----------------------------\n")

	a := p.floats(p.size)
	b := p.floats(p.size)
	var sink float32

	start := time.Now()
	for i := 0; i < p.iter; i++ {
		sink += kernels.Dot(a, b)
	}
	dotTime := time.Since(start)

	y := make([]float32, 1)
	start = time.Now()
	for i := 0; i < p.iter; i++ {
		kernels.WeightedSum(a, b, p.size, 1, y)
	}
	wsTime := time.Since(start)

	fmt.Fprintf(p.w, "Dot Product:                 %v (%.2f Mops/s)\n", dotTime, p.mops(p.size, dotTime))
	fmt.Fprintf(p.w, "Weighted Sum:                %v (%.2f Mops/s)\n", wsTime, p.mops(p.size, wsTime))
	if p.verbose {
		fmt.Fprintf(p.w, "  checksum: %g\n", sink+y[0])
	}
	fmt.Fprintf(p.w, "\n")
	return nil
}

func (p *perfRun) linearTests() error {
	fmt.Fprintf(p.w, "Linear Layer Performance\n")
	fmt.Fprintf(p.w, "------------------------\n")

	sizes := []int{64, 128, 256}
	if p.size < 256 {
		sizes = []int{16, 32, 64}
	}
	iters := max(p.iter/10, 1)

	for _, n := range sizes {
		x := p.floats(n * n)
		w := p.floats(n * n)
		b := p.floats(n)
		y := make([]float32, n*n)

		start := time.Now()
		for i := 0; i < iters; i++ {
			kernels.Linear(x, n, n, w, n, b, y)
		}
		d := time.Since(start)

		ops := int64(n) * int64(n) * int64(n) * 2 * int64(iters)
		fmt.Fprintf(p.w, "Linear %dx%d:               %v (%.2f GFLOPS)\n", n, n, d, gflops(ops, d))
	}
	fmt.Fprintf(p.w, "\n")
	return nil
}

func (p *perfRun) convTests() error {
	fmt.Fprintf(p.w, "Convolution Performance\n")
	fmt.Fprintf(p.w, "-----------------------\n")

	const (
		cin, cout, kernel = 16, 32, 3
		stride, padding   = 1, 1
	)
	length := p.size
	x := p.floats(cin * length)
	w := p.floats(cout * cin * kernel)
	b := p.floats(cout)
	outLen := kernels.ConvOutLen(length, kernel, stride, padding)
	y := make([]float32, cout*outLen)
	iters := max(p.iter/10, 1)

	start := time.Now()
	for i := 0; i < iters; i++ {
		kernels.Conv1D(x, cin, length, w, cout, kernel, stride, padding, b, y)
	}
	convTime := time.Since(start)

	poolLen := kernels.PoolOutLen(outLen, 2, 2)
	py := make([]float32, cout*poolLen)
	start = time.Now()
	for i := 0; i < iters; i++ {
		kernels.AvgPool1D(y, cout, outLen, 2, 2, py)
	}
	poolTime := time.Since(start)

	ops := int64(cout) * int64(cin) * int64(kernel) * int64(outLen) * 2 * int64(iters)
	fmt.Fprintf(p.w, "Conv1D %d->%d k%d len %d:   %v (%.2f GFLOPS)\n", cin, cout, kernel, length, convTime, gflops(ops, convTime))
	fmt.Fprintf(p.w, "AvgPool1D k2 s2:             %v (%.2f Mops/s)\n", poolTime,
		float64(cout*outLen)*float64(iters)/poolTime.Seconds()/1e6)
	fmt.Fprintf(p.w, "\n")
	return nil
}

func (p *perfRun) activationTests() error {
	fmt.Fprintf(p.w, "Activation Functions Performance\n")
	fmt.Fprintf(p.w, "-------------------------------\n")

	data := make([]float32, p.size)
	for i := range data {
		data[i] = p.rng.Float32()*20 - 10
	}

	work := make([]float32, len(data))
	for _, op := range p.ops {
		fn := kernels.GetKernel(op)

		start := time.Now()
		for i := 0; i < p.iter; i++ {
			copy(work, data)
			fn(work)
		}
		d := time.Since(start)

		fmt.Fprintf(p.w, "%-15s:             %v (%.2f Mops/s)\n", kernels.OpName(op), d, p.mops(p.size, d))
	}
	fmt.Fprintf(p.w, "\n")
	return nil
}

func (p *perfRun) modelTests() error {
	fmt.Fprintf(p.w, "Model Forward Performance\n")
	fmt.Fprintf(p.w, "-------------------------\n")

	const batch = 32
	bins, classes := model.DefaultNumBins, model.DefaultNumClasses
	x, err := core.FromSlice(p.floats(batch*bins), batch, bins)
	if err != nil {
		return err
	}
	iters := max(p.iter/100, 1)

	for _, arch := range model.Names() {
		clf, err := model.New(arch, bins, classes, 1)
		if err != nil {
			return err
		}
		start := time.Now()
		for i := 0; i < iters; i++ {
			if _, err := clf.Forward(x); err != nil {
				return fmt.Errorf("%s forward: %w", arch, err)
			}
		}
		d := time.Since(start)

		perSample := d / time.Duration(iters*batch)
		fmt.Fprintf(p.w, "%-10s batch %d:         %v (%v/sample, %.0f samples/s)\n",
			arch, batch, d, perSample, float64(iters*batch)/d.Seconds())
	}
	fmt.Fprintf(p.w, "\n")
	return nil
}

func (p *perfRun) floats(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = p.rng.Float32()*200 - 100
	}
	return data
}
