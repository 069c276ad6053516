package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	// OwnerIDHeader carries the authenticated caller. An upstream gateway is
	// expected to set it after verifying credentials.
	OwnerIDHeader = "X-Owner-ID"
	// OwnerIDLocalKey is the key used to store the owner in Fiber's context locals.
	OwnerIDLocalKey = "owner_id"
)

// Owner rejects requests without an owner with 401 and stores the owner in
// context locals for handlers.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// c.Get aliases the request buffer; the owner outlives the request in stored records.
		owner := utils.CopyString(strings.TrimSpace(c.Get(OwnerIDHeader)))
		if owner == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+OwnerIDHeader)
		}
		c.Locals(OwnerIDLocalKey, owner)
		return c.Next()
	}
}

// OwnerID returns the owner stored by Owner.
func OwnerID(c *fiber.Ctx) string {
	s, _ := c.Locals(OwnerIDLocalKey).(string)
	return s
}
