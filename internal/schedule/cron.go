package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calview/internal/log"
)

// cronParser accepts both 5-field and 6-field (with seconds) specs plus
// descriptors such as "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule starts a cron runner that calls Refresh on spec, evaluated in
// loc. Stop the returned runner on shutdown.
func (r *Refresher) Schedule(ctx context.Context, spec string, loc *time.Location) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
			appLog.Error("scheduled refresh reported errors", err, "spec", spec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("refresh schedule started", "spec", spec, "location", loc.String())
	return c, nil
}
