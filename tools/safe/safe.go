package safe

import (
	"tripchat/logger"
)

// Go starts a goroutine that recovers from panic, so a broken
// handler or pump cannot crash the whole gateway.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
