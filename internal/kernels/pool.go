package kernels

import (
	"runtime"
	"sync"
)

// rangeKernel computes output rows rs..re for one scheme.
type rangeKernel func(dst []float32, codes []uint16, x []float32, cb *Codebook, rs, re, kg int)

type matVecTask struct {
	kernel rangeKernel
	dst    []float32
	codes  []uint16
	x      []float32
	cb     *Codebook
	rs, re int
	kg     int
	done   chan struct{}
}

// matVecPool distributes row slabs of one matvec over persistent workers,
// the host-side analog of partitioning output rows across thread blocks.
type matVecPool struct {
	size      int
	tasks     chan matVecTask
	doneSlots chan chan struct{}
	workers   []chan matVecTask
}

var (
	matVecWorkPool *matVecPool
	matVecPoolOnce sync.Once
)

func getMatVecPool() *matVecPool {
	matVecPoolOnce.Do(func() {
		matVecWorkPool = newMatVecPool()
	})
	return matVecWorkPool
}

func newMatVecPool() *matVecPool {
	size := matVecWorkers
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if size < 1 {
		size = 1
	}
	p := &matVecPool{
		size:      size,
		tasks:     make(chan matVecTask, size*2),
		doneSlots: make(chan chan struct{}, size),
		workers:   make([]chan matVecTask, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, 1)
		worker := make(chan matVecTask, 1)
		p.workers[i] = worker
		go func(tasks chan matVecTask) {
			for task := range tasks {
				task.kernel(task.dst, task.codes, task.x, task.cb, task.rs, task.re, task.kg)
				task.done <- struct{}{}
			}
		}(worker)
	}

	// Dispatcher: round-robin tasks onto workers.
	go func() {
		workerIdx := 0
		for task := range p.tasks {
			p.workers[workerIdx] <- task
			workerIdx = (workerIdx + 1) % size
		}
		for _, worker := range p.workers {
			close(worker)
		}
	}()

	return p
}

// run executes kernel over all m rows, splitting across the pool when the
// row count justifies it.
func (p *matVecPool) run(kernel rangeKernel, dst []float32, codes []uint16, x []float32, cb *Codebook, m, kg int) {
	workers := p.size
	if workers > m {
		workers = m
	}
	if workers <= 1 || m < matVecParMinRows {
		kernel(dst, codes, x, cb, 0, m, kg)
		return
	}

	chunk := (m + workers - 1) / workers
	done := <-p.doneSlots

	active := 0
	for i := 0; i < workers; i++ {
		rs := i * chunk
		re := rs + chunk
		if re > m {
			re = m
		}
		if rs >= re {
			break
		}
		active++
		p.tasks <- matVecTask{
			kernel: kernel,
			dst:    dst,
			codes:  codes,
			x:      x,
			cb:     cb,
			rs:     rs,
			re:     re,
			kg:     kg,
			done:   done,
		}
	}

	for i := 0; i < active; i++ {
		<-done
	}
	p.doneSlots <- done
}
