package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/pkg/model"
)

func when(a model.Alert) string {
	if a.Timestamp.IsZero() {
		return "-"
	}
	return humanize.Time(a.Timestamp)
}

func distance(a model.Alert) string {
	if a.Distance == nil {
		return "-"
	}
	return humanize.FtoaWithDigits(*a.Distance, 1) + " km"
}

func printOwnAlert(w io.Writer, a *model.Alert) {
	if a == nil {
		fmt.Fprintln(w, "Your alert: none")
		return
	}
	fmt.Fprintf(w, "Your alert: %s  %s  %s  (%s)\n", a.ID, a.ProductType, a.Status, when(*a))
	if a.HelperName != "" {
		fmt.Fprintf(w, "  Helper:   %s\n", a.HelperName)
	}
}

func printFriendAlerts(w io.Writer, alerts []model.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts from friends.")
		return
	}
	fmt.Fprintf(w, "%-38s  %-16s  %-8s  %-9s  %-10s  %s\n", "ID", "FROM", "PRODUCT", "STATUS", "DISTANCE", "SENT")
	for _, a := range alerts {
		fmt.Fprintf(w, "%-38s  %-16s  %-8s  %-9s  %-10s  %s\n",
			a.ID, a.SenderName, a.ProductType, a.Status, distance(a), when(a))
		if a.LocationRevealed() {
			fmt.Fprintf(w, "  Location: %s\n", a.Location)
		}
	}
}

func printFriends(w io.Writer, friends []model.Friend) {
	if len(friends) == 0 {
		fmt.Fprintln(w, "No friends yet.")
		return
	}
	fmt.Fprintf(w, "%-38s  %-20s  %s\n", "ID", "NAME", "ROLE")
	for _, f := range friends {
		fmt.Fprintf(w, "%-38s  %-20s  %s\n", f.ID, f.Name, f.Role)
	}
}

func printRequests(w io.Writer, reqs []model.FriendRequest) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "No pending friend requests.")
		return
	}
	fmt.Fprintf(w, "%-38s  %-20s  %s\n", "ID", "FROM", "RECEIVED")
	for _, r := range reqs {
		received := "-"
		if r.CreatedAt != nil {
			received = humanize.Time(*r.CreatedAt)
		}
		fmt.Fprintf(w, "%-38s  %-20s  %s\n", r.ID, r.SenderName, received)
	}
}

func printUsers(w io.Writer, users []model.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	fmt.Fprintf(w, "%-38s  %-20s  %s\n", "ID", "NAME", "ROLE")
	for _, u := range users {
		fmt.Fprintf(w, "%-38s  %-20s  %s\n", u.ID, u.Name, u.Role)
	}
}

func printState(w io.Writer, s controller.State) {
	fmt.Fprintf(w, "Signed in as %s (%s)\n", s.Session.Name, s.Session.Role)
	printOwnAlert(w, s.UserAlert)
	fmt.Fprintf(w, "Friends: %d  Pending requests: %d\n\n", len(s.Friends), len(s.Requests))
	printFriendAlerts(w, s.FriendAlerts)
}
