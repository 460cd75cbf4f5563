package drd

import (
	"fmt"

	"github.com/ardnew/softhcd/pkg"
)

// Packet memory is allocated in 8-byte blocks. The blocks holding the buffer
// descriptor table are reserved.
const (
	pmaBlock    = 8
	pmaReserved = physChannels * bdStride / pmaBlock
)

// pmaAllocator tracks which blocks of packet memory are in use.
type pmaAllocator struct {
	used []bool
}

func newPMAAllocator(size int) *pmaAllocator {
	p := &pmaAllocator{used: make([]bool, size/pmaBlock)}
	p.reset()
	return p
}

// reset frees every block except the descriptor table.
func (p *pmaAllocator) reset() {
	for i := range p.used {
		p.used[i] = i < pmaReserved
	}
}

// blocks returns the number of blocks a buffer for mps bytes occupies.
// Buffers larger than 64 bytes are sized in 32-byte units, the receive
// count granularity above that size.
func blocks(mps int) int {
	if mps > 64 && mps%32 != 0 {
		mps = (mps/32 + 1) * 32
	}
	return max((mps+pmaBlock-1)/pmaBlock, 1)
}

// alloc reserves the first run of free blocks large enough for mps bytes and
// returns its byte address.
func (p *pmaAllocator) alloc(mps int) (uint16, error) {
	need := blocks(mps)
	run := 0
	for i, used := range p.used {
		if used {
			run = 0
			continue
		}
		run++
		if run == need {
			start := i - need + 1
			for j := start; j <= i; j++ {
				p.used[j] = true
			}
			return uint16(start * pmaBlock), nil
		}
	}
	return 0, fmt.Errorf("%w: %d bytes of packet memory", pkg.ErrNoResources, mps)
}

// free releases the buffer for mps bytes at addr.
func (p *pmaAllocator) free(addr uint16, mps int) error {
	start := int(addr) / pmaBlock
	end := start + blocks(mps)
	if int(addr)%pmaBlock != 0 || start < pmaReserved || end > len(p.used) {
		return fmt.Errorf("%w: packet memory address %#x", pkg.ErrInvalidParameter, addr)
	}
	for i := start; i < end; i++ {
		if !p.used[i] {
			return fmt.Errorf("%w: packet memory block %#x not allocated", pkg.ErrInvalidParameter, i*pmaBlock)
		}
	}
	for i := start; i < end; i++ {
		p.used[i] = false
	}
	return nil
}

// available returns the number of free bytes.
func (p *pmaAllocator) available() int {
	n := 0
	for _, used := range p.used {
		if !used {
			n += pmaBlock
		}
	}
	return n
}
