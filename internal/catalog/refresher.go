package catalog

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/berios/subtitle-backend/pkg/log"
)

// Refresher re-warms the catalog cache on a cron schedule.
type Refresher struct {
	cron  *cron.Cron
	cache *Cache
}

func NewRefresher(cache *Cache, cronExpr string) (*Refresher, error) {
	c := cron.New()
	r := &Refresher{cron: c, cache: cache}

	_, err := c.AddFunc(cronExpr, func() {
		if err := cache.Refresh(context.Background()); err != nil {
			log.Error("Catalog refresh failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid catalog refresh schedule %q: %w", cronExpr, err)
	}
	return r, nil
}

func (r *Refresher) Start() {
	r.cron.Start()
}

func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
