// License: Apache-2.0
//
// ThreadPool wraps Executor with lock-free queue underneath.

package concurrency

import "github.com/coriolis-systems/workercore/api"

type ThreadPool struct {
    executor *Executor
}

var _ api.Executor = (*ThreadPool)(nil)

func NewThreadPool(size, numaNode int) *ThreadPool {
    return &ThreadPool{
        executor: NewExecutor(size, numaNode),
    }
}

func (tp *ThreadPool) Submit(f func()) error {
    return tp.executor.Submit(f)
}

func (tp *ThreadPool) Close() {
    tp.executor.Close()
}

func (tp *ThreadPool) NumWorkers() int {
    return tp.executor.NumWorkers()
}

func (tp *ThreadPool) Resize(newCount int) {
    tp.executor.Resize(newCount)
}
