package heartrate

var bodySensorLocations = [...]string{
	0: "Other",
	1: "Chest",
	2: "Wrist",
	3: "Finger",
	4: "Hand",
	5: "Ear Lobe",
	6: "Foot",
}

// DecodeBodySensorLocation maps a Body Sensor Location payload to its label.
// Unknown codes and empty payloads report ok == false, which callers treat as
// "keep whatever was known before" rather than an error.
func DecodeBodySensorLocation(raw []byte) (label string, ok bool) {
	if len(raw) == 0 {
		return "", false
	}
	code := int(raw[0])
	if code >= len(bodySensorLocations) {
		return "", false
	}
	return bodySensorLocations[code], true
}
