package registry

import "encoding/json"

// wireRecord mirrors the required JSON shape: the CCM-specific fields (iv,
// direction bit) are nested under "ccm_data" while everything else is
// top-level. key/iv are fixed-size byte arrays so encoding/json marshals
// them as arrays of small integers rather than base64 (the special-casing
// in encoding/json only applies to []byte slices, not [N]byte arrays),
// matching the canonical on-wire example.
type wireRecord struct {
	Name       string      `json:"name"`
	Fields     []string    `json:"fields"`
	FieldTypes []FieldType `json:"field_types"`
	Key        [16]byte    `json:"key"`
	Interval   uint32      `json:"interval"`
	CCMData    ccmData     `json:"ccm_data"`
}

type ccmData struct {
	DirectionBit bool    `json:"_direction_bit"`
	IV           [8]byte `json:"iv"`
}

// MarshalJSON implements the wire shape described above.
func (r SensorRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Name:       r.Name,
		Fields:     r.Fields,
		FieldTypes: r.FieldTypes,
		Key:        r.Key,
		Interval:   r.Interval,
		CCMData: ccmData{
			DirectionBit: r.DirectionBit,
			IV:           r.IV,
		},
	})
}

// UnmarshalJSON parses the wire shape described above. The `_direction_bit`
// field is accepted but its value is never interpreted by this server.
func (r *SensorRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Name = w.Name
	r.Fields = w.Fields
	r.FieldTypes = w.FieldTypes
	r.Key = w.Key
	r.Interval = w.Interval
	r.DirectionBit = w.CCMData.DirectionBit
	r.IV = w.CCMData.IV
	return nil
}
