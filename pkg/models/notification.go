package models

// Notification icon vocabulary.
const (
	IconPerson       = "person"
	IconSecurity     = "security"
	IconAnnouncement = "announcement"
	IconMail         = "mail"
	IconLock         = "lock"
)

// ValidIcon reports whether icon is one of the known tags.
func ValidIcon(icon string) bool {
	switch icon {
	case IconPerson, IconSecurity, IconAnnouncement, IconMail, IconLock:
		return true
	}
	return false
}

// Notification is one entry in a user's newest-first notification list.
// Only the unread flag is ever mutated after creation.
type Notification struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Icon    string `json:"icon"`
	TS      int64  `json:"ts"`
	Time    string `json:"time"`
	Unread  bool   `json:"unread"`
}
