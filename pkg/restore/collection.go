package restore

import (
	"bytes"

	"github.com/pkg/errors"
)

// DecodeCollection accepts a plain JSON array of restores or a list object
// carrying them in "items". Null elements are dropped.
func DecodeCollection(data []byte) ([]*Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty restore collection")
	}
	if data[0] == '[' {
		var records []*Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, errors.Wrap(err, "failed to deserialize restores")
		}
		return withoutNil(records), nil
	}
	var list struct {
		Items []*Record `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize restore list")
	}
	if list.Items == nil {
		return nil, errors.New("restore list has no items")
	}
	return withoutNil(list.Items), nil
}

// null elements decode to nil records
func withoutNil(records []*Record) []*Record {
	ret := records[:0]
	for _, record := range records {
		if record != nil {
			ret = append(ret, record)
		}
	}
	return ret
}
