// Copyright (c) 2025 BVK Chaitanya

package exchange

import "time"

// RemoteTime holds a timestamp reported by the exchange server. It is a
// distinct type so that server timestamps are not confused with local
// wall-clock readings.
type RemoteTime struct {
	time.Time
}

func (v RemoteTime) MarshalBinary() ([]byte, error) {
	s := v.Time.Format(time.RFC3339Nano)
	return []byte(s), nil
}

func (v *RemoteTime) UnmarshalBinary(bs []byte) error {
	t, err := time.Parse(time.RFC3339Nano, string(bs))
	if err != nil {
		return err
	}
	v.Time = t
	return nil
}
