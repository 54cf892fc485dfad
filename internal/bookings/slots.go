package bookings

// TimeSlots are the bookable service windows, in display order.
var TimeSlots = []string{
	"05:00 AM", "06:00 AM", "07:00 AM", "08:00 AM", "09:00 AM", "10:00 AM",
	"11:00 AM", "12:00 PM", "01:00 PM", "02:00 PM", "03:00 PM", "04:00 PM",
	"05:00 PM", "06:00 PM", "07:00 PM", "08:00 PM",
}

// ValidTimeSlot reports whether slot is one of TimeSlots.
func ValidTimeSlot(slot string) bool {
	for _, candidate := range TimeSlots {
		if candidate == slot {
			return true
		}
	}
	return false
}

func availableSlots(taken []string) []string {
	used := make(map[string]struct{}, len(taken))
	for _, slot := range taken {
		used[slot] = struct{}{}
	}
	out := make([]string, 0, len(TimeSlots))
	for _, slot := range TimeSlots {
		if _, ok := used[slot]; !ok {
			out = append(out, slot)
		}
	}
	return out
}
