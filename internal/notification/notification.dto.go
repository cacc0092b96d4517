package notification

import "fmt"

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (r RegisterDeviceRequest) Validate() error {
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	switch r.Platform {
	case "ios", "android", "web":
		return nil
	}
	return fmt.Errorf("platform must be one of ios, android, web")
}
