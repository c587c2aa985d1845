package model

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Name is a display name that arrives from the store either as a plain
// string or as a bilingual {en, ar} document. Exactly one form is set;
// Display is the single resolution point for logging and client output.
type Name struct {
	Plain string `json:"plain,omitempty"`
	EN    string `json:"en,omitempty"`
	AR    string `json:"ar,omitempty"`
}

// PlainName wraps a plain string name.
func PlainName(s string) Name { return Name{Plain: s} }

// BilingualName wraps an en/ar pair.
func BilingualName(en, ar string) Name { return Name{EN: en, AR: ar} }

// Display resolves the name for display, preferring the plain form,
// then English, then Arabic.
func (n Name) Display() string {
	if n.Plain != "" {
		return n.Plain
	}
	if n.EN != "" {
		return n.EN
	}
	return n.AR
}

// IsZero reports whether no form of the name is set.
func (n Name) IsZero() bool { return n == Name{} }

type bilingual struct {
	EN string `json:"en" bson:"en"`
	AR string `json:"ar" bson:"ar"`
}

// MarshalJSON emits the plain string form when set, the {en, ar}
// document otherwise.
func (n Name) MarshalJSON() ([]byte, error) {
	if n.Plain != "" {
		return json.Marshal(n.Plain)
	}
	return json.Marshal(bilingual{EN: n.EN, AR: n.AR})
}

// UnmarshalJSON accepts either a JSON string or an {en, ar} object.
func (n *Name) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Name{Plain: s}
		return nil
	}
	var b bilingual
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*n = Name{EN: b.EN, AR: b.AR}
	return nil
}

// MarshalBSONValue mirrors MarshalJSON for documents written through the
// driver (tests and fixtures; the pipeline itself never writes).
func (n Name) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if n.Plain != "" {
		return bson.MarshalValue(n.Plain)
	}
	return bson.MarshalValue(bilingual{EN: n.EN, AR: n.AR})
}

// UnmarshalBSONValue accepts either a BSON string or an {en, ar} document.
func (n *Name) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.String:
		var s string
		if err := bson.UnmarshalValue(t, data, &s); err != nil {
			return err
		}
		*n = Name{Plain: s}
		return nil
	case bsontype.Null, bsontype.Undefined:
		*n = Name{}
		return nil
	default:
		var b bilingual
		if err := bson.UnmarshalValue(t, data, &b); err != nil {
			return err
		}
		*n = Name{EN: b.EN, AR: b.AR}
		return nil
	}
}
