package gologin

// Profile is the body of a create-profile request.
type Profile struct {
	Name        string    `json:"name"`
	BrowserType string    `json:"browserType"`
	OS          string    `json:"os"`
	Navigator   Navigator `json:"navigator"`
	Screen      Screen    `json:"screen"`
	GeoProxy    GeoProxy  `json:"geoProxy"`
	Proxy       Proxy     `json:"proxy"`
	Timezone    Toggle    `json:"timezone"`
	WebRTC      Mode      `json:"webRTC"`
	Canvas      Mode      `json:"canvas"`
	WebGL       Mode      `json:"webGL"`
}

type Navigator struct {
	Language            string `json:"language"`
	Platform            string `json:"platform"`
	Vendor              string `json:"vendor"`
	UserAgent           string `json:"userAgent"`
	Resolution          string `json:"resolution"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
	DeviceMemory        int    `json:"deviceMemory"`
}

type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type GeoProxy struct {
	Country string `json:"country"`
}

type Proxy struct {
	Mode string `json:"mode"`
}

type Toggle struct {
	Enabled bool `json:"enabled"`
}

type Mode struct {
	Mode string `json:"mode"`
}

type createResponse struct {
	ID string `json:"id"`
}

type startRequest struct {
	ProfileID string `json:"profileId"`
	Sync      bool   `json:"sync"`
}

type startResponse struct {
	Status string `json:"status"`
	WSURL  string `json:"wsUrl"`
}

type stopRequest struct {
	ProfileID string `json:"profileId"`
}
