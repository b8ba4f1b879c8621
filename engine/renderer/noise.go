package renderer

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

const (
	// defaultNoiseSize is the edge length of the sun noise volume.
	defaultNoiseSize = 128

	noiseSeed = 0x5eed
)

// noiseOctaves are the lattice cell counts of the four channels, low frequency first.
var noiseOctaves = [4]int{4, 8, 16, 32}

// noiseTask generates the tileable RGBA noise volume in the background. It is started once
// and joined once; there is no cancellation.
type noiseTask struct {
	size   uint32
	pool   worker.DynamicWorkerPool
	result chan []byte

	joined bool
	data   []byte
}

// startNoiseTask splits the volume into z slabs and submits them to a worker pool. The
// result channel receives the finished volume after the last slab completes.
func startNoiseTask(size uint32, workers int) *noiseTask {
	workers = max(workers, 1)
	slab := max(int(size)/workers, 1)
	slabs := (int(size) + slab - 1) / slab
	t := &noiseTask{
		size:   size,
		pool:   worker.NewDynamicWorkerPool(workers, slabs, time.Second),
		result: make(chan []byte, 1),
	}

	lattices := buildLattices()
	data := make([]byte, int(size)*int(size)*int(size)*4)

	var wg sync.WaitGroup
	for id := 0; id < slabs; id++ {
		z0, z1 := id*slab, min((id+1)*slab, int(size))
		wg.Add(1)
		t.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fillNoise(data, int(size), z0, z1, lattices)
				return nil, nil
			},
		})
	}
	go func() {
		wg.Wait()
		t.result <- data
	}()
	return t
}

// join blocks until the volume is ready and returns it. Later calls return the same slice.
func (t *noiseTask) join() []byte {
	if !t.joined {
		t.data = <-t.result
		t.joined = true
		t.pool.Stop()
	}
	return t.data
}

// stop waits for the generation to finish so no worker outlives the renderer.
func (t *noiseTask) stop() {
	t.join()
}

// buildLattices returns one random lattice per channel.
func buildLattices() [4][]float32 {
	rng := rand.New(rand.NewPCG(noiseSeed, noiseSeed^0x9e3779b97f4a7c15))
	var out [4][]float32
	for c, n := range noiseOctaves {
		l := make([]float32, n*n*n)
		for i := range l {
			l[i] = rng.Float32()
		}
		out[c] = l
	}
	return out
}

// fillNoise writes slices z0..z1 of the volume. Each channel is trilinear value noise that
// wraps at the volume edges so the texture tiles.
func fillNoise(data []byte, size, z0, z1 int, lattices [4][]float32) {
	for z := z0; z < z1; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				o := ((z*size+y)*size + x) * 4
				for c, n := range noiseOctaves {
					v := sampleLattice(lattices[c], n, float32(x)*float32(n)/float32(size),
						float32(y)*float32(n)/float32(size), float32(z)*float32(n)/float32(size))
					data[o+c] = byte(v * 255)
				}
			}
		}
	}
}

func sampleLattice(l []float32, n int, x, y, z float32) float32 {
	xi, yi, zi := int(x), int(y), int(z)
	fx, fy, fz := smooth(x-float32(xi)), smooth(y-float32(yi)), smooth(z-float32(zi))
	at := func(i, j, k int) float32 {
		return l[((k%n)*n+(j%n))*n+(i%n)]
	}
	lerp := func(a, b, t float32) float32 { return a + (b-a)*t }
	x00 := lerp(at(xi, yi, zi), at(xi+1, yi, zi), fx)
	x10 := lerp(at(xi, yi+1, zi), at(xi+1, yi+1, zi), fx)
	x01 := lerp(at(xi, yi, zi+1), at(xi+1, yi, zi+1), fx)
	x11 := lerp(at(xi, yi+1, zi+1), at(xi+1, yi+1, zi+1), fx)
	return lerp(lerp(x00, x10, fy), lerp(x01, x11, fy), fz)
}

func smooth(t float32) float32 { return t * t * (3 - 2*t) }
