// Package dialog manages short-lived per-chat conversational state.
package dialog

import (
	"context"
	"time"
)

// CmdType identifies the command a chat is working through.
type CmdType int

const (
	CmdNone CmdType = iota
	CmdQuery
	CmdSubscribe
)

// RcvMsgType identifies what the next inbound message is expected to carry.
type RcvMsgType int

const (
	RcvNormal RcvMsgType = iota
	RcvUsername
	RcvPassword
	RcvCookie
)

// TTL is the idle window after which dialog state silently expires.
const TTL = 15 * time.Minute

// User is the per-chat dialog state. The zero value is the default state for
// a chat with no prior interaction.
//
// CachedUsername is set only between the username and password steps.
type User struct {
	CmdType        CmdType    `json:"cmdType"`
	RcvMsgType     RcvMsgType `json:"rcvMsgType"`
	CachedUsername string     `json:"cachedUsername,omitempty"`
}

// Store persists dialog state with automatic expiry. Get returns the default
// state for absent, expired, or undecryptable entries; it never fails the
// conversation over a bad record.
type Store interface {
	Get(ctx context.Context, chatID int64) (*User, error)
	// Save stores the state and resets the expiry window.
	Save(ctx context.Context, chatID int64, user *User) error
	Remove(ctx context.Context, chatID int64) error
}
