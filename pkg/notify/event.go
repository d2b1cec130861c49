package notify

import (
	"time"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
)

// Outcome is the payload announced downstream after an event's harvest.
type Outcome struct {
	SiteID       string    `json:"site_id"`
	EventName    string    `json:"event_name"`
	EventURL     string    `json:"event_url"`
	EventDate    time.Time `json:"event_date"`
	Status       string    `json:"status"`
	NewCompanies int       `json:"new_companies"`
	RemoteTotal  int       `json:"remote_total"`
	HarvestedAt  time.Time `json:"harvested_at"`
}

// NewOutcome constructs an Outcome for the given site + event result.
func NewOutcome(siteID string, ev domain.Event, status string, newCompanies, remoteTotal int) Outcome {
	return Outcome{
		SiteID:       siteID,
		EventName:    ev.Name,
		EventURL:     ev.CanonicalURL,
		EventDate:    ev.Date,
		Status:       status,
		NewCompanies: newCompanies,
		RemoteTotal:  remoteTotal,
		HarvestedAt:  time.Now().UTC(),
	}
}
