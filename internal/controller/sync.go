package controller

import (
	"context"

	"github.com/me/luna/pkg/model"
	"golang.org/x/sync/errgroup"
)

// seqGuard orders responses for one collection. Each fetch takes a number
// when it is issued; its response is applied only if nothing issued later
// has been applied already.
type seqGuard struct {
	issued  uint64
	applied uint64
}

func (g *seqGuard) next() uint64 {
	g.issued++
	return g.issued
}

func (g *seqGuard) admit(seq uint64) bool {
	if seq <= g.applied {
		return false
	}
	g.applied = seq
	return true
}

// invalidate makes every fetch issued so far stale.
func (g *seqGuard) invalidate() {
	g.applied = g.issued
}

// Refresh re-fetches friends, incoming requests and active alerts in
// parallel and replaces the local copies. Without a session it does nothing.
// Each collection is applied independently, so one failing fetch does not
// hold back the others; the first error is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	userID, epoch := c.session.ID, c.epoch
	friendsSeq := c.friendsSeq.next()
	requestsSeq := c.requestsSeq.next()
	alertsSeq := c.alertsSeq.next()
	c.mu.Unlock()

	var (
		friends  []model.Friend
		requests []model.FriendRequest
		alerts   []model.Alert
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		friends, err = c.backend.ListFriends(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		requests, err = c.backend.ListFriendRequests(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = c.backend.ActiveAlerts(ctx)
		return err
	})
	err := g.Wait()

	changed := false
	c.mu.Lock()
	if c.epoch == epoch {
		if friends != nil && c.friendsSeq.admit(friendsSeq) {
			c.friends = friends
			changed = true
		}
		if requests != nil && c.requestsSeq.admit(requestsSeq) {
			c.requests = requests
			changed = true
		}
		if alerts != nil && c.alertsSeq.admit(alertsSeq) {
			c.applyAlertsLocked(alerts, userID)
			changed = true
		}
	} else {
		c.logger.Debug("discarding refresh for ended session", "user_id", userID)
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return err
}

// FetchAlerts re-fetches active alerts and splits them into the session's
// own alert and its friends' alerts.
func (c *Controller) FetchAlerts(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	userID, epoch := c.session.ID, c.epoch
	seq := c.alertsSeq.next()
	c.mu.Unlock()

	alerts, err := c.backend.ActiveAlerts(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	applied := c.epoch == epoch && c.alertsSeq.admit(seq)
	if applied {
		c.applyAlertsLocked(alerts, userID)
	}
	c.mu.Unlock()

	if applied {
		c.notify()
	}
	return nil
}

func (c *Controller) applyAlertsLocked(alerts []model.Alert, userID string) {
	own, others := model.PartitionAlerts(alerts, userID)
	c.ownAlertIDs = make(map[string]bool, len(own))
	for _, a := range own {
		c.ownAlertIDs[a.ID] = true
	}
	c.userAlert = model.SelectOwnAlert(own)
	c.friendAlerts = others
}
