package realtime

import "sync"

// tasks tracks background fan-out so shutdown and tests can wait for it.
type tasks struct {
	wg sync.WaitGroup
}

func (t *tasks) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *tasks) Wait() {
	t.wg.Wait()
}
