package chip

import "time"

func SetSleep(c *Chip, fn func(time.Duration)) {
	c.sleep = fn
}
