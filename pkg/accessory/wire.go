package accessory

// WireValue is one entry of a /characteristics request or response body.
// Reads fill Value (and the metadata when requested); writes carry Value or
// Events; 207 responses carry Status.
type WireValue struct {
	AID    uint64  `json:"aid"`
	IID    uint64  `json:"iid"`
	Value  any     `json:"value,omitempty"`
	Events *bool   `json:"ev,omitempty"`
	Status *Status `json:"status,omitempty"`

	// Metadata, present when the read asked for it.
	Type   *Type  `json:"type,omitempty"`
	Format Format `json:"format,omitempty"`
	Perms  []Perm `json:"perms,omitempty"`
}

// ID returns the address of w.
func (w WireValue) ID() ID {
	return ID{AID: w.AID, IID: w.IID}
}

// CharacteristicsBody is the JSON object exchanged on /characteristics and
// in EVENT messages.
type CharacteristicsBody struct {
	Characteristics []WireValue `json:"characteristics"`
}

// EncodeBody marshals b.
func EncodeBody(b *CharacteristicsBody) ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBody unmarshals a /characteristics or EVENT body.
func DecodeBody(data []byte) (*CharacteristicsBody, error) {
	var b CharacteristicsBody
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
