package labels

import "image/color"

// Palette maps labels and track ids to display colours.
//
// A Palette is plain configuration: build one with DefaultPalette or by hand
// and pass it to whatever renders the detections.
type Palette struct {
	// ByLabel holds colours for specific labels.
	ByLabel map[string]color.RGBA
	// Fallback is used for labels missing from ByLabel.
	Fallback color.RGBA
	// Tracks is cycled through by track id.
	Tracks []color.RGBA
}

// DefaultPalette returns a new palette with the camera-trap colour scheme.
func DefaultPalette() Palette {
	orange := color.RGBA{R: 255, G: 165, B: 0, A: 255}
	return Palette{
		ByLabel: map[string]color.RGBA{
			"human":   {R: 0, G: 255, B: 0, A: 255},
			"vehicle": {R: 0, G: 0, B: 255, A: 255},
			"cat":     orange,
			"dog":     orange,
		},
		Fallback: color.RGBA{R: 255, G: 0, B: 0, A: 255},
		// Set1
		Tracks: []color.RGBA{
			{R: 228, G: 26, B: 28, A: 255},
			{R: 55, G: 126, B: 184, A: 255},
			{R: 77, G: 175, B: 74, A: 255},
			{R: 152, G: 78, B: 163, A: 255},
			{R: 255, G: 127, B: 0, A: 255},
			{R: 255, G: 255, B: 51, A: 255},
			{R: 166, G: 86, B: 40, A: 255},
			{R: 247, G: 129, B: 191, A: 255},
			{R: 153, G: 153, B: 153, A: 255},
		},
	}
}

// LabelColor returns the colour of a label.
func (p Palette) LabelColor(label string) color.RGBA {
	if c, ok := p.ByLabel[label]; ok {
		return c
	}
	return p.Fallback
}

// TrackColor returns the colour of a track id. Negative ids and an empty
// track palette fall back to the label fallback colour.
func (p Palette) TrackColor(id int) color.RGBA {
	if id < 0 || len(p.Tracks) == 0 {
		return p.Fallback
	}
	return p.Tracks[id%len(p.Tracks)]
}
