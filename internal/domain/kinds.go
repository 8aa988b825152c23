package domain

import "fmt"

// NotificationKind is the closed set of event kinds a producer may publish.
type NotificationKind string

const (
	KindGroupInvite      NotificationKind = "group.invite"
	KindGroupUpdate      NotificationKind = "group.update"
	KindTripUpdate       NotificationKind = "trip.update"
	KindEventReminder    NotificationKind = "event.reminder"
	KindMessageNew       NotificationKind = "message.new"
	KindKeyRotation      NotificationKind = "key.rotation"
	KindLowPreKeys       NotificationKind = "key.low_pre_keys"
	KindSenderKeyRotate  NotificationKind = "senderkey.rotate"
	KindMembershipChange NotificationKind = "membership.change"
)

// Validate rejects kinds outside the closed set. The switch is exhaustive on
// purpose; adding a kind without extending it is a compile-time reminder via
// DefaultTitle below.
func (k NotificationKind) Validate() error {
	switch k {
	case KindGroupInvite, KindGroupUpdate, KindTripUpdate, KindEventReminder,
		KindMessageNew, KindKeyRotation, KindLowPreKeys, KindSenderKeyRotate,
		KindMembershipChange:
		return nil
	}
	return fmt.Errorf("%w: unknown notification kind %q", ErrInvalidRequest, string(k))
}

// DefaultTitle is used when a producer publishes with an empty title.
func (k NotificationKind) DefaultTitle() string {
	switch k {
	case KindGroupInvite:
		return "Group Invitation"
	case KindGroupUpdate:
		return "Group Updated"
	case KindTripUpdate:
		return "Trip Updated"
	case KindEventReminder:
		return "Event Reminder"
	case KindMessageNew:
		return "New Message"
	case KindKeyRotation:
		return "Security Update"
	case KindLowPreKeys:
		return "Pre-Key Pool Low"
	case KindSenderKeyRotate:
		return "Group Key Rotation"
	case KindMembershipChange:
		return "Membership Changed"
	}
	return string(k)
}
