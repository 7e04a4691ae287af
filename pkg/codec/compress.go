package codec

import (
	"encoding/json"

	"invitely/pkg/models"
	"invitely/pkg/utils"
)

// elided lists the layer fields dropped when they hold their default value
var elided = map[string]string{
	"fontWeight":     models.DefaultFontWeight,
	"fontStyle":      models.DefaultFontStyle,
	"textDecoration": models.DefaultTextDecoration,
	"padding":        models.DefaultPadding,
}

// Compress returns the compact JSON form of p: image transforms rounded
// (cx, cy, angle to 2 places, scale to 3), layer positions rounded to whole
// pixels and default-valued fields removed. Decoding restores the elided
// fields from the defaults.
func Compress(p models.Project) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	if rsvp, ok := tree["rsvp"].(string); ok && rsvp == string(models.RSVPNone) {
		delete(tree, "rsvp")
	}
	if q, ok := tree["mapQuery"].(string); ok && q == "" {
		delete(tree, "mapQuery")
	}

	slides, _ := tree["slides"].([]interface{})
	for _, rawSlide := range slides {
		slide, ok := rawSlide.(map[string]interface{})
		if !ok {
			continue
		}
		if img, ok := slide["image"].(map[string]interface{}); ok {
			roundField(img, "cx", 2)
			roundField(img, "cy", 2)
			roundField(img, "angle", 2)
			roundField(img, "scale", 3)
		}
		layers, _ := slide["layers"].([]interface{})
		for _, rawLayer := range layers {
			layer, ok := rawLayer.(map[string]interface{})
			if !ok {
				continue
			}
			roundField(layer, "left", 0)
			roundField(layer, "top", 0)
			for field, def := range elided {
				if v, ok := layer[field].(string); ok && v == def {
					delete(layer, field)
				}
			}
		}
	}

	return json.Marshal(tree)
}

func roundField(m map[string]interface{}, key string, places int) {
	if v, ok := m[key].(float64); ok {
		m[key] = utils.RoundTo(v, places)
	}
}
