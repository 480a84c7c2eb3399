package domain

import "regexp"

// MaxPresetsPerUser limita cuántos presets guarda cada dueño.
const MaxPresetsPerUser = 10

var presetNameRe = regexp.MustCompile(`^[A-Za-z0-9_\- ]{1,50}$`)

// Preset es una configuración de sala guardada por un usuario.
type Preset struct {
	Name      string   `json:"name"`
	RoomName  string   `json:"room_name,omitempty"`
	UserLimit int      `json:"user_limit,omitempty"`
	Bitrate   int      `json:"bitrate,omitempty"`
	Bans      []string `json:"bans,omitempty"`
}

func ValidatePresetName(name string) error {
	if !presetNameRe.MatchString(name) {
		return ErrPresetName
	}
	return nil
}

// Clamp ajusta límites a los topes del guild. bitrateCap viene en bps.
func (p *Preset) Clamp(bitrateCap int) {
	if p.UserLimit < 0 {
		p.UserLimit = 0
	}
	if p.UserLimit > 99 {
		p.UserLimit = 99
	}
	if p.Bitrate != 0 {
		if p.Bitrate < 8000 {
			p.Bitrate = 8000
		}
		if bitrateCap > 0 && p.Bitrate > bitrateCap {
			p.Bitrate = bitrateCap
		}
	}
}
