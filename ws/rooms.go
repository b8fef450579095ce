package ws

import "strings"

// Room name prefixes. Rooms are plain strings; the prefix determines
// who may join.
const (
	RoomFeed          = "feed"
	roomPrefixStyle   = "style:"
	roomPrefixTeeTime = "tee-time:"
	roomPrefixUser    = "user:"
)

// StyleRoom returns the broadcast room for a play style
func StyleRoom(style string) string {
	return roomPrefixStyle + style
}

// TeeTimeRoom returns the broadcast room for one opportunity
func TeeTimeRoom(opportunityID string) string {
	return roomPrefixTeeTime + opportunityID
}

// UserRoom returns a user's private room
func UserRoom(userID string) string {
	return roomPrefixUser + userID
}

// ValidRoom reports whether the name matches a known room shape.
// Unknown shapes are rejected before any membership check.
func ValidRoom(name string) bool {
	if name == RoomFeed {
		return true
	}
	for _, prefix := range []string{roomPrefixStyle, roomPrefixTeeTime, roomPrefixUser} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	return false
}

// CanJoin reports whether a user may subscribe to a room. Private user
// rooms admit only their owner; everything else is open.
func CanJoin(userID, room string) bool {
	if !ValidRoom(room) {
		return false
	}
	if strings.HasPrefix(room, roomPrefixUser) {
		return room == UserRoom(userID)
	}
	return true
}
