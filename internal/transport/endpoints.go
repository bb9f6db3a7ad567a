package transport

import (
	"strings"

	"github.com/roach88/edgerelay/internal/model"
)

// DefaultHost is the cloud host used for plain customer numbers.
const DefaultHost = "https://eqcloud.ais-automation.com"

// Endpoints are the URLs of one piece of equipment.
type Endpoints struct {
	Host     string
	TokenURL string
	ThingURL string
}

// ResolveEndpoints derives the endpoint URLs from a customer id and an
// equipment id. A customer id starting with "http" is an alternative host
// address and is used as is, minus trailing slashes. Otherwise it is a
// customer number on DefaultHost, with the "C" prefix added if missing.
func ResolveEndpoints(customerID, eqID string) Endpoints {
	var host string
	switch {
	case strings.HasPrefix(customerID, "http"):
		host = strings.TrimRight(customerID, "/")
	case strings.HasPrefix(strings.ToUpper(customerID), "C"):
		host = DefaultHost + "/" + customerID
	default:
		host = DefaultHost + "/C" + customerID
	}
	return Endpoints{
		Host:     host,
		TokenURL: host + "/cloudconnect/oauth/token",
		ThingURL: host + "/cloudconnect/api/monitoring/v2/things/" + eqID,
	}
}

// ConfigurationURL returns the endpoint for one configuration category.
func (e Endpoints) ConfigurationURL(category model.Category) string {
	return e.ThingURL + "/configuration/" + string(category)
}
