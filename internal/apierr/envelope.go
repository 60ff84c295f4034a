package apierr

// Links is the HATEOAS `_links` block attached to every envelope.
type Links map[string]Link

// Link is a single HATEOAS link.
type Link struct {
	Href string `json:"href"`
}

// SelfLink builds the common single-"self"-link case.
func SelfLink(href string) Links {
	return Links{"self": {Href: href}}
}

// Envelope is the success response shape:
// { "data": ..., "_links": { "self": { "href": "..." } } }.
type Envelope struct {
	Data  any   `json:"data"`
	Links Links `json:"_links"`
}

// NewEnvelope wraps data with a self link.
func NewEnvelope(data any, selfHref string) Envelope {
	return Envelope{Data: data, Links: SelfLink(selfHref)}
}

// ErrorBody is the nested "error" object of an error envelope.
type ErrorBody struct {
	Message    string       `json:"message"`
	StatusCode int          `json:"status_code"`
	Details    []FieldError `json:"details,omitempty"`
}

// ErrorEnvelope is the error response shape:
// { "error": { "message", "status_code", "details"? }, "_links": {...} }.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
	Links Links     `json:"_links"`
}

// NewErrorEnvelope builds an ErrorEnvelope from any error, normalising
// arbitrary errors into a generic StorageError-shaped 500.
func NewErrorEnvelope(err error, selfHref string) ErrorEnvelope {
	apiErr, ok := As(err)
	if !ok {
		apiErr = Wrap(KindStorage, "internal error", err)
	}
	return ErrorEnvelope{
		Error: ErrorBody{
			Message:    apiErr.Message,
			StatusCode: apiErr.StatusCode(),
			Details:    apiErr.Details,
		},
		Links: SelfLink(selfHref),
	}
}
