package programs

import (
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/stewi1014/juliafield/field"
)

// MaxCachedKernels bounds the number of kernel variants kept at once. The
// oldest variant is dropped when a new one would exceed it.
const MaxCachedKernels = 64

// VariantKey hashes the configuration that requires a program to be rebuilt.
func VariantKey(program, expression string, iterations int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(program))
	h.Write([]byte{0})
	h.Write([]byte(expression))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(iterations)))
	return h.Sum64()
}

var kernels = newKernelCache(MaxCachedKernels)

type kernelCache struct {
	mu    sync.Mutex
	limit int
	m     map[uint64]*field.Kernel
	order []uint64
}

func newKernelCache(limit int) *kernelCache {
	return &kernelCache{
		limit: limit,
		m:     make(map[uint64]*field.Kernel),
	}
}

func (c *kernelCache) get(key uint64, build func() (*field.Kernel, error)) (*field.Kernel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if k, ok := c.m[key]; ok {
		return k, nil
	}

	k, err := build()
	if err != nil {
		return nil, err
	}

	if len(c.order) >= c.limit {
		delete(c.m, c.order[0])
		c.order = c.order[1:]
	}
	c.m[key] = k
	c.order = append(c.order, key)
	return k, nil
}

func (c *kernelCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
