package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

// Detached runs registrations in the background. Callers never wait for the
// outcome; failures go to the log.
type Detached struct {
	reg     *Registrar
	timeout time.Duration
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewDetached(reg *Registrar, timeout time.Duration, logger *zap.SugaredLogger) *Detached {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Detached{reg: reg, timeout: timeout, logger: logger}
}

// Go starts a registration for u and returns immediately. The task is not
// tied to the caller's context.
func (d *Detached) Go(u *entity.User) {
	u = u.Clone()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if _, err := d.reg.Register(ctx, u); err != nil {
			d.logger.Warnw("push registration failed", "user_id", userID(u), "err", err)
		}
	}()
}

// Wait blocks until every started task has finished.
func (d *Detached) Wait() {
	d.wg.Wait()
}

func userID(u *entity.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
