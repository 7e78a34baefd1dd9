package session

import (
	"context"
	"log"
	"sync"
)

// Bootstrap recreates the sessions recorded in device persistence: for each
// known tenant, every recorded session id gets a Create. Tenants are
// replayed concurrently and independently; a failure for one tenant or one
// session does not stop the others.
func (m *Manager) Bootstrap(ctx context.Context) error {
	tenants, err := m.devices.Tenants(ctx)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			ids, err := m.devices.List(ctx, tenant)
			if err != nil {
				log.Printf("session: bootstrap list devices for %s: %v", tenant, err)
				return
			}
			if len(ids) == 0 {
				return
			}
			log.Printf("session: bootstrap restoring %d session(s) for %s", len(ids), tenant)
			for _, id := range ids {
				if err := m.Create(ctx, id, tenant); err != nil {
					log.Printf("session: bootstrap create %s/%s: %v", tenant, id, err)
				}
			}
		}(tenant)
	}
	wg.Wait()
	return nil
}
