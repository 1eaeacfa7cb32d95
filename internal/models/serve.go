package models

// ServeRequest is the body of POST /api/v1/ads/serve. Balance is a pointer
// so a missing field can be told apart from a zero balance.
type ServeRequest struct {
	Balance    *float64 `json:"balance"`
	Channel    Channel  `json:"channel,omitempty"`
	CustomerID string   `json:"customerId"`
}

// ServeResponse is the ad returned to the client. It is also the value
// cached under ad:{segment}:{channel}:{customerId}.
type ServeResponse struct {
	AdID     string  `json:"adId"`
	Title    string  `json:"title"`
	ImageURL string  `json:"imageUrl"`
	VideoURL string  `json:"videoUrl,omitempty"`
	CTA      string  `json:"cta,omitempty"`
	Segment  Segment `json:"segment"`
	Channel  Channel `json:"channel"`
	Fallback bool    `json:"fallback,omitempty"`
}

// EventRequest is the body of the impression and click endpoints.
type EventRequest struct {
	AdID       string `json:"adId"`
	CustomerID string `json:"customerId,omitempty"`
}
