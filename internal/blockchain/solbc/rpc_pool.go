// internal/blockchain/solbc/rpc_pool.go
package solbc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNoActiveNodes возникает, когда в пуле не осталось доступных узлов.
var ErrNoActiveNodes = errors.New("no active RPC nodes available")

// NodeError - ошибка RPC с указанием узла и метода.
type NodeError struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// nodeMetrics - счетчики успешных и неудачных вызовов узла.
type nodeMetrics struct {
	mutex        sync.RWMutex
	successCount uint64
	errorCount   uint64
	latency      time.Duration
}

// rpcNode - один RPC-эндпоинт пула.
type rpcNode struct {
	url     string
	client  *rpc.Client
	active  atomic.Bool
	metrics nodeMetrics
}

func newRPCNode(url string) *rpcNode {
	n := &rpcNode{url: url, client: rpc.New(url)}
	n.active.Store(true)
	return n
}

func (n *rpcNode) setActive(state bool) {
	n.active.Store(state)
}

func (n *rpcNode) isActive() bool {
	return n.active.Load()
}

func (n *rpcNode) updateMetrics(success bool, latency time.Duration) {
	n.metrics.mutex.Lock()
	defer n.metrics.mutex.Unlock()

	if success {
		atomic.AddUint64(&n.metrics.successCount, 1)
	} else {
		atomic.AddUint64(&n.metrics.errorCount, 1)
	}

	if n.metrics.latency == 0 {
		n.metrics.latency = latency
		return
	}
	n.metrics.latency = (n.metrics.latency + latency) / 2 // Скользящее среднее
}

// stats возвращает накопленные метрики узла.
func (n *rpcNode) stats() (successCount uint64, errorCount uint64, avgLatency time.Duration) {
	n.metrics.mutex.RLock()
	defer n.metrics.mutex.RUnlock()
	return atomic.LoadUint64(&n.metrics.successCount),
		atomic.LoadUint64(&n.metrics.errorCount),
		n.metrics.latency
}

// nodePool хранит узлы в порядке приоритета из rpc_list.
type nodePool struct {
	nodes []*rpcNode
}

func newNodePool(urls []string) (*nodePool, error) {
	if len(urls) == 0 {
		return nil, ErrNoActiveNodes
	}
	nodes := make([]*rpcNode, 0, len(urls))
	for _, u := range urls {
		nodes = append(nodes, newRPCNode(u))
	}
	return &nodePool{nodes: nodes}, nil
}

// candidates возвращает активные узлы по приоритету. Если все узлы помечены
// неактивными, пул сбрасывается и возвращает все узлы.
func (p *nodePool) candidates() []*rpcNode {
	out := make([]*rpcNode, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.isActive() {
			out = append(out, n)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, n := range p.nodes {
		n.setActive(true)
	}
	return append(out, p.nodes...)
}

// primary возвращает первый активный узел.
func (p *nodePool) primary() *rpcNode {
	return p.candidates()[0]
}
