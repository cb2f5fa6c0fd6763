// Package snowflake generates time-ordered 64-bit identifiers.
//
// Layout, high to low: 41 bits of milliseconds since Epoch, 5 bits of node
// id, 5 bits of process id and a 12 bit sequence.
//
// The process bits come from a hash of the host name and pid, so replicas
// that all run as pid 1 in their containers still differ. Only distinct
// node ids guarantee uniqueness across replicas.
package snowflake

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Epoch is 2020-01-01T00:00:00Z in Unix milliseconds.
const Epoch int64 = 1577836800000

const (
	nodeBits = 5
	pidBits  = 5
	seqBits  = 12

	maxNode = 1<<nodeBits - 1
	pidMask = 1<<pidBits - 1
	seqMask = 1<<seqBits - 1

	pidShift  = seqBits
	nodeShift = seqBits + pidBits
	timeShift = seqBits + pidBits + nodeBits
)

// Generator hands out strictly increasing ids. It is safe for concurrent use.
type Generator struct {
	node  int64
	pid   int64
	state atomic.Int64
	now   func() time.Time
}

// AutoNode makes New derive the node bits from the host as well.
const AutoNode int64 = -1

// New creates a Generator for the given node id, or for AutoNode.
func New(node int64) (*Generator, error) {
	host, _ := os.Hostname()
	return newGenerator(node, instanceBits(host, os.Getpid()))
}

func newGenerator(node, instance int64) (*Generator, error) {
	g := &Generator{pid: instance & pidMask, now: time.Now}

	switch {
	case node == AutoNode:
		g.node = instance >> pidBits & maxNode
	case node < 0 || node > maxNode:
		return nil, fmt.Errorf("node id must be in [0, %d] or %d, got %d", maxNode, AutoNode, node)
	default:
		g.node = node
	}
	return g, nil
}

// instanceBits hashes the host name and pid into the node and process
// fields.
func instanceBits(host string, pid int) int64 {
	sum := xxhash.Sum64String(host + "/" + strconv.Itoa(pid))
	return int64(sum ^ sum>>32) & (1<<(nodeBits+pidBits) - 1)
}

// Instance reports the node and process bits stamped into every id.
func (g *Generator) Instance() (node, pid int64) {
	return g.node, g.pid
}

// Next returns the next id.
func (g *Generator) Next() int64 {
	for {
		prev := g.state.Load()
		lastMs := prev >> seqBits
		seq := prev & seqMask

		ms := g.now().UnixMilli() - Epoch
		switch {
		case ms > lastMs:
			seq = 0
		case seq < seqMask:
			// same millisecond or clock went backwards: stay on lastMs
			ms = lastMs
			seq++
		default:
			ms = lastMs + 1
			seq = 0
		}

		if g.state.CompareAndSwap(prev, ms<<seqBits|seq) {
			return ms<<timeShift | g.node<<nodeShift | g.pid<<pidShift | seq
		}
	}
}

// Time extracts the creation time of an id.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch)
}
