package model

import "time"

// User is a directory entry returned by user search.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role,omitempty"`
}

// Friend is one side of a symmetric friendship.
type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role,omitempty"`
}

// FriendRequest is an incoming request awaiting accept or deny.
type FriendRequest struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId,omitempty"`
	SenderName string     `json:"senderName"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}
