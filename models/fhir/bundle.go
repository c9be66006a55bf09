package fhir

import "encoding/json"

// Bundle is the FHIR wire-format envelope returned by search requests.
// Entry resources are kept as raw JSON so the mapping layer can parse them
// into its own tree representation.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Id           *string       `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Timestamp    *string       `json:"timestamp,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink carries pagination links ("self", "next", "previous", ...).
type BundleLink struct {
	Relation string `json:"relation"`
	Url      string `json:"url"`
}

// BundleEntry holds one resource within a bundle.
type BundleEntry struct {
	FullUrl  *string         `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NextLink returns the url of the link with relation "next", or "" when the
// bundle is the last page.
func (b *Bundle) NextLink() string {
	for _, link := range b.Link {
		if link.Relation == "next" {
			return link.Url
		}
	}
	return ""
}
