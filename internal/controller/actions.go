package controller

import (
	"context"
	"strings"

	"github.com/me/luna/internal/api"
	"github.com/me/luna/pkg/model"
)

// SearchDirectory returns users matching query. Any failure, including a
// missing session, yields an empty list so the search box keeps working.
func (c *Controller) SearchDirectory(ctx context.Context, query string) []model.User {
	query = strings.TrimSpace(query)
	userID, _, err := c.current("search users")
	if err != nil || query == "" {
		return []model.User{}
	}
	users, err := c.backend.SearchUsers(ctx, query, userID)
	if err != nil {
		c.logger.Warn("search failed", "query", query, "error", err)
		return []model.User{}
	}
	return users
}

// SendFriendRequest asks target to become a friend. Local lists are not
// touched; the request shows up on the other side.
func (c *Controller) SendFriendRequest(ctx context.Context, target model.User) error {
	const op = "send friend request"
	userID, _, err := c.current(op)
	if err != nil {
		return err
	}
	if target.ID == "" {
		return model.NewValidationError(op, "No user selected.")
	}
	if target.ID == userID {
		return model.NewValidationError(op, "You cannot add yourself.")
	}
	if err := c.backend.SendFriendRequest(ctx, userID, target.ID); err != nil {
		return err
	}
	c.logger.Info("friend request sent", "to_user_id", target.ID)
	return nil
}

// AcceptFriendRequest accepts an incoming request, then refreshes so the
// new friend and the shortened request list come from the backend.
func (c *Controller) AcceptFriendRequest(ctx context.Context, requestID string) error {
	const op = "accept friend request"
	if _, _, err := c.current(op); err != nil {
		return err
	}
	if requestID == "" {
		return model.NewValidationError(op, "No request selected.")
	}
	if err := c.backend.AcceptFriendRequest(ctx, requestID); err != nil {
		return err
	}
	c.refreshAfter(ctx, op)
	return nil
}

// DenyFriendRequest drops an incoming request. Unless SyncFriendRemovals is
// set this only edits the local cache, and the next poll will bring the
// request back if the backend still has it.
func (c *Controller) DenyFriendRequest(ctx context.Context, requestID string) error {
	const op = "deny friend request"
	if c.cfg.SyncFriendRemovals {
		if _, _, err := c.current(op); err != nil {
			return err
		}
		if err := c.backend.DenyFriendRequest(ctx, requestID); err != nil {
			return err
		}
		c.refreshAfter(ctx, op)
		return nil
	}

	c.mu.Lock()
	kept := c.requests[:0:0]
	for _, r := range c.requests {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	c.requests = kept
	c.mu.Unlock()
	c.notify()
	return nil
}

// RemoveFriend drops a friend. Unless SyncFriendRemovals is set this only
// edits the local cache.
func (c *Controller) RemoveFriend(ctx context.Context, friendID string) error {
	const op = "remove friend"
	if c.cfg.SyncFriendRemovals {
		userID, _, err := c.current(op)
		if err != nil {
			return err
		}
		if err := c.backend.RemoveFriend(ctx, userID, friendID); err != nil {
			return err
		}
		c.refreshAfter(ctx, op)
		return nil
	}

	c.mu.Lock()
	kept := c.friends[:0:0]
	for _, f := range c.friends {
		if f.ID != friendID {
			kept = append(kept, f)
		}
	}
	c.friends = kept
	c.mu.Unlock()
	c.notify()
	return nil
}

// SendAlert broadcasts a request for productType to the session's friends
// and re-fetches alerts so the new alert comes from the backend.
func (c *Controller) SendAlert(ctx context.Context, productType string) error {
	const op = "send alert"
	userID, _, err := c.current(op)
	if err != nil {
		return err
	}
	productType = strings.TrimSpace(productType)
	if productType == "" {
		return model.NewValidationError(op, "Choose a product.")
	}
	err = c.backend.CreateAlert(ctx, api.CreateAlertRequest{
		SenderID:    userID,
		ProductType: productType,
		Latitude:    c.cfg.Latitude,
		Longitude:   c.cfg.Longitude,
	})
	if err != nil {
		return err
	}
	c.logger.Info("alert sent", "product_type", productType)
	if err := c.FetchAlerts(ctx); err != nil {
		c.logger.Warn("fetch alerts after send failed", "error", err)
	}
	return nil
}

// AcceptFriendAlert volunteers the session user as helper for a friend's
// alert. The re-fetch that follows carries the revealed location.
func (c *Controller) AcceptFriendAlert(ctx context.Context, alertID string) error {
	const op = "accept alert"
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return model.NewNoSessionError(op)
	}
	userID := c.session.ID
	own := c.ownAlertIDs[alertID] || (c.userAlert != nil && c.userAlert.ID == alertID)
	c.mu.Unlock()

	if alertID == "" {
		return model.NewValidationError(op, "No alert selected.")
	}
	if own {
		return model.NewValidationError(op, "You cannot accept your own alert.")
	}
	if err := c.backend.AcceptAlert(ctx, alertID, userID); err != nil {
		return err
	}
	c.logger.Info("alert accepted", "alert_id", alertID)
	if err := c.FetchAlerts(ctx); err != nil {
		c.logger.Warn("fetch alerts after accept failed", "error", err)
	}
	return nil
}

// CancelAlert withdraws the session's own alert and clears the slot without
// a re-fetch. Without an own alert it does nothing.
func (c *Controller) CancelAlert(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil || c.userAlert == nil {
		c.mu.Unlock()
		return nil
	}
	alertID, epoch := c.userAlert.ID, c.epoch
	c.mu.Unlock()

	if err := c.backend.CancelAlert(ctx, alertID); err != nil {
		return err
	}

	c.mu.Lock()
	cleared := c.epoch == epoch && c.userAlert != nil && c.userAlert.ID == alertID
	if cleared {
		c.userAlert = nil
		// A fetch issued before the cancel would bring the alert back.
		c.alertsSeq.invalidate()
	}
	c.mu.Unlock()

	c.logger.Info("alert cancelled", "alert_id", alertID)
	if cleared {
		c.notify()
	}
	return nil
}

func (c *Controller) refreshAfter(ctx context.Context, op string) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after "+op+" failed", "error", err)
	}
}
