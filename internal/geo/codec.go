package geo

import (
	"encoding/json"
	"fmt"
)

// EncodePolygon serializes a polygon to the textual form stored in the
// coordinates column: a JSON array of {"x":..,"y":..} objects. float64
// values are written in shortest round-trip form, so decoding yields the
// exact same numbers in the same order.
func EncodePolygon(poly Polygon) (string, error) {
	if poly == nil {
		poly = Polygon{}
	}
	data, err := json.Marshal(poly)
	if err != nil {
		return "", fmt.Errorf("encode polygon: %w", err)
	}
	return string(data), nil
}

// DecodePolygon parses text produced by EncodePolygon.
func DecodePolygon(text string) (Polygon, error) {
	var poly Polygon
	if err := json.Unmarshal([]byte(text), &poly); err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}
	if poly == nil {
		poly = Polygon{}
	}
	return poly, nil
}
