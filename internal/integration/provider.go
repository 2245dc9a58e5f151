package integration

import "fmt"

// Provider identifies one logical integration as the frontend sees it.
type Provider string

// Known providers.
const (
	ProviderGoogleCalendar Provider = "googleCalendar"
	ProviderGmail          Provider = "gmail"
	ProviderOutlook        Provider = "outlook"
)

// Family identifies an OAuth token family. Gmail and Google Calendar are two
// logical integrations backed by one Google grant, so they share a family;
// Outlook has its own.
type Family string

// Known token families.
const (
	FamilyGoogle    Family = "google"
	FamilyMicrosoft Family = "microsoft"
)

// Family returns the token family backing the provider.
func (p Provider) Family() (Family, error) {
	switch p {
	case ProviderGoogleCalendar, ProviderGmail:
		return FamilyGoogle, nil
	case ProviderOutlook:
		return FamilyMicrosoft, nil
	default:
		return "", fmt.Errorf("unknown provider %q", p)
	}
}

// ParseFamily converts the URL path segment used by the integrations routes
// ("google" or "outlook") into a token family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "google":
		return FamilyGoogle, nil
	case "outlook":
		return FamilyMicrosoft, nil
	default:
		return "", fmt.Errorf("unknown integration %q", s)
	}
}
