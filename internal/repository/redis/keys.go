package redisrepo

import "fmt"

const ns = "tickets:v1"

// KeyEventAvailability is the cached availability of an event. Daily events
// are cached per date; standard events use date "all".
func KeyEventAvailability(eventID int64, date string) string {
	if date == "" {
		date = "all"
	}
	return fmt.Sprintf("%s:event:%d:availability:%s", ns, eventID, date)
}

func KeyEventAvailabilityPattern(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability:*", ns, eventID)
}

func KeyEventDates(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:dates", ns, eventID)
}

func KeyEventDatesPattern() string {
	return ns + ":event:*:dates"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemCheckout(scope, idemKey string) string {
	return fmt.Sprintf("%s:idem:checkout:%s:%s", ns, scope, idemKey)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
