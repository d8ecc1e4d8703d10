package panel

import "fmt"

// Settings selects and configures a Provisioner.
type Settings struct {
	Mode    string // "cli" or "api"
	Python  string
	CLIPath string
	APIURL  string
	APIKey  string
	SubURL  string
}

// PanelFactory creates a Provisioner based on the configured mode.
func PanelFactory(s Settings) (Provisioner, error) {
	switch s.Mode {
	case "", "cli":
		return NewHysteriaCLI(s.Python, s.CLIPath, nil), nil
	case "api":
		if s.APIURL == "" {
			return nil, fmt.Errorf("provisioner mode api requires VPN_API_URL")
		}
		return NewHysteriaAPI(s.APIURL, s.APIKey, s.SubURL), nil
	default:
		return nil, fmt.Errorf("unsupported provisioner mode: %s", s.Mode)
	}
}
