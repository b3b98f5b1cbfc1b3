package domain

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrOwnerRequired = errors.New("user_id or session_id is required")
	ErrInvalidOwner  = errors.New("invalid cart owner")
)

type OwnerKind uint8

const (
	OwnerUnknown OwnerKind = iota
	OwnerUser
	OwnerAnonymous
)

// Owner identifies who a cart belongs to: either a registered user or an
// anonymous browser session, never both.
type Owner struct {
	kind      OwnerKind
	userID    int64
	sessionID string
}

func UserOwner(userID int64) (Owner, error) {
	if userID <= 0 {
		return Owner{}, ErrInvalidOwner
	}

	return Owner{kind: OwnerUser, userID: userID}, nil
}

func AnonymousOwner(sessionID string) (Owner, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Owner{}, ErrInvalidOwner
	}

	return Owner{kind: OwnerAnonymous, sessionID: sessionID}, nil
}

// ParseOwner builds an Owner from optional request fields. A user id wins
// over a session id when both are present.
func ParseOwner(userID *int64, sessionID *string) (Owner, error) {
	if userID != nil && *userID != 0 {
		return UserOwner(*userID)
	}

	if sessionID != nil && strings.TrimSpace(*sessionID) != "" {
		return AnonymousOwner(*sessionID)
	}

	return Owner{}, ErrOwnerRequired
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) IsZero() bool { return o.kind == OwnerUnknown }

func (o Owner) UserID() (int64, bool) {
	return o.userID, o.kind == OwnerUser
}

func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == OwnerAnonymous
}

// Columns returns the nullable (user_id, session_id) pair stored in carts.
func (o Owner) Columns() (*int64, *string) {
	switch o.kind {
	case OwnerUser:
		id := o.userID
		return &id, nil
	case OwnerAnonymous:
		sid := o.sessionID
		return nil, &sid
	default:
		return nil, nil
	}
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerUser:
		return "user:" + strconv.FormatInt(o.userID, 10)
	case OwnerAnonymous:
		return "session:" + o.sessionID
	default:
		return "unknown"
	}
}

// CartAccess is what a request can prove about itself: a verified user id, a
// session id, or both. A cart is reachable when either matches its owner.
type CartAccess struct {
	UserID    *int64
	SessionID *string
}

func NewCartAccess(userID *int64, sessionID string) CartAccess {
	access := CartAccess{UserID: userID}
	if sid := strings.TrimSpace(sessionID); sid != "" {
		access.SessionID = &sid
	}

	return access
}

func (a CartAccess) IsZero() bool {
	return a.UserID == nil && a.SessionID == nil
}

// Allows reports whether owner matches either credential.
func (a CartAccess) Allows(owner Owner) bool {
	if id, ok := owner.UserID(); ok {
		return a.UserID != nil && *a.UserID == id
	}
	if sid, ok := owner.SessionID(); ok {
		return a.SessionID != nil && *a.SessionID == sid
	}

	return false
}
