// Package clinic provides clinic-specific configuration and business rules.
package clinic

import (
	"strings"
	"time"

	"github.com/avaclinic/booking-assistant/internal/schedule"
)

// Resource is a bookable physical location (room/chair) within the clinic.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServiceOffering is a bookable service from the clinic's menu.
type ServiceOffering struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NotificationPrefs holds notification preferences for a clinic.
type NotificationPrefs struct {
	EmailEnabled bool `json:"email_enabled"`
}

// Config holds clinic-specific configuration. Resources and services are
// closed enumerations: the booking tools only accept identifiers listed here.
type Config struct {
	OrgID    string `json:"org_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"` // e.g., "America/New_York"

	// Slots is the static ordered grid of bookable time points per day.
	Slots []string `json:"slots"`
	// ClosedWeekday names the one fixed weekday the clinic is closed.
	ClosedWeekday string `json:"closed_weekday"`

	Resources []Resource        `json:"resources"`
	Services  []ServiceOffering `json:"services"`

	// PublicBaseURL is used to build the confirm/cancel links in emails.
	PublicBaseURL string `json:"public_base_url,omitempty"`

	Notifications NotificationPrefs `json:"notifications"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig(orgID string) *Config {
	return &Config{
		OrgID:         orgID,
		Name:          "Clinic",
		Timezone:      "America/New_York",
		Slots:         schedule.DefaultGrid(),
		ClosedWeekday: "Sunday",
		Resources: []Resource{
			{ID: "loc-A", Name: "Room A"},
			{ID: "loc-B", Name: "Room B"},
		},
		Services: []ServiceOffering{
			{ID: "general", Name: "General Consultation"},
			{ID: "followup", Name: "Follow-up Visit"},
			{ID: "cleaning", Name: "Hygiene & Cleaning"},
		},
		Notifications: NotificationPrefs{
			EmailEnabled: true,
		},
	}
}

// Location resolves the clinic's timezone, falling back to UTC on bad input.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotGrid returns the configured slot grid, defaulting when unset.
func (c *Config) SlotGrid() []string {
	if c == nil || len(c.Slots) == 0 {
		return schedule.DefaultGrid()
	}
	return c.Slots
}

// IsClosedOn reports whether the clinic is closed on the given weekday.
func (c *Config) IsClosedOn(day time.Weekday) bool {
	if c == nil {
		return false
	}
	closed := c.ClosedWeekday
	if closed == "" {
		closed = "Sunday"
	}
	return strings.EqualFold(day.String(), closed)
}

// HasResource reports whether id names a known resource.
func (c *Config) HasResource(id string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Resources {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasService reports whether id names a known service.
func (c *Config) HasService(id string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Services {
		if s.ID == id {
			return true
		}
	}
	return false
}

// ResourceName returns the display name for a resource id, or the id itself
// when unknown.
func (c *Config) ResourceName(id string) string {
	if c != nil {
		for _, r := range c.Resources {
			if r.ID == id {
				return r.Name
			}
		}
	}
	return id
}

// ServiceName returns the display name for a service id, or the id itself
// when unknown.
func (c *Config) ServiceName(id string) string {
	if c != nil {
		for _, s := range c.Services {
			if s.ID == id {
				return s.Name
			}
		}
	}
	return id
}

// ResourceIDs returns the closed enumeration of resource identifiers.
func (c *Config) ResourceIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Resources))
	for _, r := range c.Resources {
		ids = append(ids, r.ID)
	}
	return ids
}

// ServiceIDs returns the closed enumeration of service identifiers.
func (c *Config) ServiceIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		ids = append(ids, s.ID)
	}
	return ids
}
