package marketplace

import "fmt"

// InvalidOrder is signaled to the bot as a rejected operation; it does
// not abort the simulation (§7).
type InvalidOrder struct {
	Reason string
}

func (e InvalidOrder) Error() string {
	return fmt.Sprintf("marketplace: invalid order: %s", e.Reason)
}
